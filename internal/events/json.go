package events

import "time"

// JSONEvent is the wire format for serialized events (log files, the
// store, the web pusher's websocket frames).
type JSONEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id,omitempty"`
	Item      string                 `json:"item,omitempty"`
	Slot      *int                   `json:"slot,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ToJSONEvent converts an internal Event to its wire format.
func ToJSONEvent(e Event) JSONEvent {
	je := JSONEvent{
		Type:      string(e.Type),
		Timestamp: e.Time,
		RunID:     e.RunID,
		Item:      e.Item,
		Slot:      e.Slot,
		Error:     e.Error,
	}

	if e.Payload != nil {
		switch p := e.Payload.(type) {
		case map[string]interface{}:
			je.Payload = p
		default:
			je.Payload = map[string]interface{}{"value": e.Payload}
		}
	}

	return je
}

// ToEvent converts a wire format JSONEvent back to an internal Event.
func (je JSONEvent) ToEvent() Event {
	var payload any
	if je.Payload != nil {
		payload = je.Payload
	}

	return Event{
		Type:    EventType(je.Type),
		Time:    je.Timestamp,
		RunID:   je.RunID,
		Item:    je.Item,
		Slot:    je.Slot,
		Payload: payload,
		Error:   je.Error,
	}
}
