package events

import (
	"sync"

	"seaescrow/core/types"
)

// Event represents a structured state change emitted by a native module.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (RPC receipts, the audit
// journal, logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Typed adapts a *types.Event to the Event interface.
type Typed struct {
	Evt *types.Event
}

func (t Typed) EventType() string {
	if t.Evt == nil {
		return ""
	}
	return t.Evt.Type
}

func (t Typed) Event() *types.Event { return t.Evt }

// Wrap returns evt as an Event. A nil event yields nil.
func Wrap(evt *types.Event) Event {
	if evt == nil {
		return nil
	}
	return Typed{Evt: evt}
}

// Payload extracts the canonical *types.Event from ev when one is available.
func Payload(ev Event) *types.Event {
	if ev == nil {
		return nil
	}
	if carrier, ok := ev.(interface{ Event() *types.Event }); ok {
		return carrier.Event()
	}
	return &types.Event{Type: ev.EventType(), Attributes: map[string]string{}}
}

// Buffer holds events raised while an instruction executes. They are handed to
// the downstream emitter only after the state journal commits, so a failed
// instruction never publishes anything.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *Buffer) Emit(ev Event) {
	if ev == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events in emission order.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush forwards every buffered event to dst and empties the buffer.
func (b *Buffer) Flush(dst Emitter) []*types.Event {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	payloads := make([]*types.Event, 0, len(pending))
	for _, ev := range pending {
		if dst != nil {
			dst.Emit(ev)
		}
		payloads = append(payloads, Payload(ev))
	}
	return payloads
}

// Reset drops buffered events without delivering them.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}
