package config

import "sync"

// ChangeEvent notifies subscribers that some part of the configuration
// changed. Base names which top-level section triggered it ("modbus",
// "oms", "sml", "iec62056", "config", "file") so a worker with no
// configured instances can ignore events for other protocols.
type ChangeEvent struct {
	Base string
}

// Broadcaster fans a ChangeEvent out to every subscriber. Each subscriber
// channel is bounded (spec.md §5: capacity 100); on overflow the oldest
// buffered event for that slow subscriber is dropped to make room for the
// new one, so the receiver observes a gap rather than the publisher
// blocking.
type Broadcaster struct {
	mu       sync.RWMutex
	capacity int
	subs     []chan ChangeEvent
}

func NewBroadcaster(capacity int) *Broadcaster {
	return &Broadcaster{capacity: capacity}
}

func (b *Broadcaster) Subscribe() <-chan ChangeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan ChangeEvent, b.capacity)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Broadcaster) Publish(ev ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Full: drop the oldest buffered event for this subscriber,
			// then retry once. If another publisher races us and refills
			// it first, the event is dropped entirely — acceptable per
			// spec.md §5 ("drops the slowest receiver's oldest events").
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
