// Package events fans daemon state changes out to in-process subscribers:
// the journal, desktop notifications, and whatever tests attach. Delivery
// is asynchronous and lossy; a publisher never blocks on a slow consumer.
package events

import (
	"sync"
	"time"
)

// EventType names a daemon state change.
type EventType string

const (
	// EventPendingSet is published when an edit lands in the pending slot.
	EventPendingSet EventType = "pending_set"
	// EventPendingApplied is published when a pending change takes effect.
	EventPendingApplied EventType = "pending_applied"
	// EventPendingCancelled is published when the pending slot is cleared.
	EventPendingCancelled EventType = "pending_cancelled"
	// EventShieldsUpdated is published after a successful shield update.
	EventShieldsUpdated EventType = "shields_updated"
	// EventUnlockScheduled is published when the daily window is registered.
	EventUnlockScheduled EventType = "unlock_scheduled"
	// EventUnlockCancelled is published when the daily window is removed.
	EventUnlockCancelled EventType = "unlock_cancelled"
	// EventUnlockTriggered is published when a recognized window fires.
	EventUnlockTriggered EventType = "unlock_triggered"
	// EventSelectionUpdated is published when the shield target set changes.
	EventSelectionUpdated EventType = "selection_updated"
)

// Event is one published state change. Data carries the fields journal
// entries and notification text are built from.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber receives events for a single EventType.
type Subscriber func(Event)

type subscription struct {
	ch chan Event
}

// Bus routes events to per-subscriber buffered channels. When a buffer is
// full the event is dropped for that subscriber only.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]*subscription
	size int
}

// NewBus returns a bus whose subscribers each buffer up to size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 100
	}
	return &Bus{
		subs: make(map[EventType][]*subscription),
		size: size,
	}
}

// Subscribe attaches fn to one event type and returns the function that
// detaches it again. fn runs on its own goroutine, one event at a time.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	sub := &subscription{ch: make(chan Event, b.size)}

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()

	go deliver(sub.ch, fn)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[eventType]
		for i, s := range list {
			if s == sub {
				b.subs[eventType] = append(list[:i], list[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}
}

// deliver drains one subscriber channel until it closes. A panic in fn is
// confined to the event that raised it.
func deliver(ch <-chan Event, fn Subscriber) {
	for e := range ch {
		func() {
			defer func() {
				_ = recover()
			}()
			fn(e)
		}()
	}
}

// Publish sends the event to every subscriber of eventType. Subscribers
// whose buffers are full miss this event.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	e := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Close detaches every subscriber. Buffered events are still delivered;
// each delivery goroutine exits once its channel drains.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for et, list := range b.subs {
		for _, sub := range list {
			close(sub.ch)
		}
		delete(b.subs, et)
	}
}
