package scheduler

import "sync"

// PendingItem is a work item waiting for a slot, already classified so
// the scheduler never reclassifies the same item twice (§4.H
// pick_next: "Return item with its classified domain so it is not
// classified again downstream").
type PendingItem struct {
	ID     string
	Number int
	Title  string
	Body   string
	Labels []string
	Domain string
}

// Queue holds items in arrival order and implements pick_next (§4.H
// Selection rule): scanning from the head for the first item whose
// domain is compatible with every currently-running slot, falling back
// to the head itself when the window is empty.
type Queue struct {
	mu    sync.Mutex
	items []PendingItem
	set   map[string]bool
}

// NewQueue creates an empty pending-item queue.
func NewQueue() *Queue {
	return &Queue{set: make(map[string]bool)}
}

// Push appends item to the tail of the queue. No-op if its ID is already queued.
func (q *Queue) Push(item PendingItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.set[item.ID] {
		return
	}
	q.items = append(q.items, item)
	q.set[item.ID] = true
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// List returns a copy of the queue contents in order, without removing them.
func (q *Queue) List() []PendingItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingItem, len(q.items))
	copy(out, q.items)
	return out
}

// PickNext implements §4.H's pick_next: advancing from the head, it
// returns the first queued item whose domain compatible reports true
// for, removing it from the queue. If no queued item is compatible but
// activeSlots is zero, it takes the head anyway (there is no window to
// wait on). Returns ok=false when the queue is empty, or when no queued
// item is compatible and activeSlots is above zero.
func (q *Queue) PickNext(activeSlots int, compatible func(domain string) bool) (PendingItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return PendingItem{}, false
	}

	for i, item := range q.items {
		if compatible(item.Domain) {
			q.removeAt(i)
			return item, true
		}
	}

	if activeSlots == 0 {
		head := q.items[0]
		q.removeAt(0)
		return head, true
	}

	return PendingItem{}, false
}

// Remove drops id from the queue if present, reporting whether it was found.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID == id {
			q.removeAt(i)
			return true
		}
	}
	return false
}

// removeAt deletes the item at index i. Caller must hold q.mu.
func (q *Queue) removeAt(i int) {
	item := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	delete(q.set, item.ID)
}
