package web

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/foreman-run/foreman/internal/events"
)

// SocketPusher forwards scheduler events to a Unix socket for the web
// server to pick up, so the scheduling process and the browser-facing
// server can run detached from each other.
type SocketPusher struct {
	cfg     PusherConfig
	bus     *events.Bus
	conn    net.Conn
	mu      sync.RWMutex
	eventCh chan events.Event
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSocketPusher creates a pusher that will connect to the configured
// socket. Does not connect until Start() is called.
func NewSocketPusher(bus *events.Bus, cfg PusherConfig) *SocketPusher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 100 * time.Millisecond
	}
	if cfg.MaxReconnectBackoff <= 0 {
		cfg.MaxReconnectBackoff = 5 * time.Second
	}

	return &SocketPusher{
		cfg:     cfg,
		bus:     bus,
		eventCh: make(chan events.Event, cfg.BufferSize),
		done:    make(chan struct{}),
	}
}

// Start connects to the socket and begins forwarding events. Subscribes
// to the event bus and runs the push loop in a goroutine. Returns an
// error if the initial connection fails.
func (p *SocketPusher) Start(ctx context.Context) error {
	if err := p.connect(); err != nil {
		return err
	}

	p.bus.Subscribe(func(e events.Event) {
		select {
		case p.eventCh <- e:
		default:
			// Channel full, drop event.
		}
	})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pushLoop(ctx)
	}()

	return nil
}

// Close stops the pusher and releases resources. Blocks until the push
// loop exits.
func (p *SocketPusher) Close() error {
	close(p.done)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// Connected returns true if currently connected to the socket.
func (p *SocketPusher) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn != nil
}

// pushLoop reads from eventCh and writes to the socket, handling
// reconnection with exponential backoff.
func (p *SocketPusher) pushLoop(ctx context.Context) {
	backoff := p.cfg.ReconnectBackoff

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case e := <-p.eventCh:
			if err := p.writeEvent(e); err != nil {
			reconnectLoop:
				for {
					select {
					case <-p.done:
						return
					case <-ctx.Done():
						return
					case <-time.After(backoff):
						if err := p.connect(); err != nil {
							backoff = min(backoff*2, p.cfg.MaxReconnectBackoff)
							continue
						}
						backoff = p.cfg.ReconnectBackoff
						_ = p.writeEvent(e)
						break reconnectLoop
					}
				}
			}
		}
	}
}

// connect establishes connection to the Unix socket.
func (p *SocketPusher) connect() error {
	conn, err := net.Dial("unix", p.cfg.SocketPath)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn = conn
	p.mu.Unlock()

	return nil
}

// writeEvent sends a single event over the socket.
func (p *SocketPusher) writeEvent(e events.Event) error {
	wireEvent := WireEvent{
		Type:    string(e.Type),
		Time:    e.Time,
		RunID:   e.RunID,
		Item:    e.Item,
		Slot:    e.Slot,
		Payload: e.Payload,
		Error:   e.Error,
	}
	return p.writeWireEvent(wireEvent)
}

func (p *SocketPusher) writeWireEvent(wireEvent WireEvent) error {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()

	if conn == nil {
		return net.ErrClosed
	}

	if err := conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout)); err != nil {
		return err
	}

	data, err := json.Marshal(wireEvent)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	_, err = conn.Write(data)
	return err
}
