package channel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/metrics"
)

// Listener receives inbound messages for one action.
type Listener func(msg domain.InboundMessage) error

// Subscription identifies a registered listener.
type Subscription struct {
	action string
	id     uint64
}

type subscriber struct {
	id uint64
	fn Listener
}

// Dispatcher fans inbound messages out to per-action listeners. A failing
// listener is logged and skipped.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]subscriber
	nextID    uint64
	logger    *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		listeners: make(map[string][]subscriber),
		logger:    logger,
	}
}

// Subscribe registers fn for action.
func (d *Dispatcher) Subscribe(action string, fn Listener) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.listeners[action] = append(d.listeners[action], subscriber{id: d.nextID, fn: fn})
	return Subscription{action: action, id: d.nextID}
}

// Unsubscribe removes a listener. Unknown subscriptions are ignored.
func (d *Dispatcher) Unsubscribe(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.listeners[sub.action]
	for i, s := range subs {
		if s.id == sub.id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(d.listeners, sub.action)
		return
	}
	d.listeners[sub.action] = subs
}

// Dispatch delivers msg to every listener of msg.Action in subscription
// order and returns how many were invoked.
func (d *Dispatcher) Dispatch(msg domain.InboundMessage) int {
	d.mu.RLock()
	subs := d.listeners[msg.Action]
	d.mu.RUnlock()

	for _, s := range subs {
		d.deliver(s, msg)
	}
	return len(subs)
}

func (d *Dispatcher) deliver(s subscriber, msg domain.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ListenerFailures.WithLabelValues(msg.Action).Inc()
			d.logger.Error("Listener panicked", "action", msg.Action, "panic", r)
		}
	}()
	if err := s.fn(msg); err != nil {
		metrics.ListenerFailures.WithLabelValues(msg.Action).Inc()
		d.logger.Warn("Listener failed", "action", msg.Action, "error", err)
	}
}

// Handle subscribes fn to action, decoding the message data into T.
func Handle[T any](d *Dispatcher, action string, fn func(T) error) Subscription {
	return d.Subscribe(action, func(msg domain.InboundMessage) error {
		var v T
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &v); err != nil {
				return fmt.Errorf("decode %s payload: %w", action, err)
			}
		}
		return fn(v)
	})
}
