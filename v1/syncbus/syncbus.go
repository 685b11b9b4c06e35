// Package syncbus propagates lock release events between nodes. Distributed
// resolver backends publish on "unlock:<name>" when a guard is released so
// that blocked acquirers retry instead of polling. Delivery is best effort:
// a waiter with a full channel simply coalesces wake-ups, and a missed event
// only delays the next retry.
package syncbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bus is a minimal pub/sub channel for release notifications.
type Bus interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (chan struct{}, error)
	Unsubscribe(ctx context.Context, topic string, ch chan struct{}) error
}

// Metrics carries publish/delivery counters of a Bus.
type Metrics struct {
	Published uint64
	Delivered uint64
}

// InMemoryBus is a process-local Bus, used by single-node setups and tests.
type InMemoryBus struct {
	mu        sync.Mutex
	subs      map[string][]chan struct{}
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewInMemoryBus returns a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[string][]chan struct{})}
}

// Publish implements Bus.Publish. Sends never block: a subscriber that has not
// consumed the previous signal keeps its single pending wake-up. Delivery runs
// under the mutex so a concurrent Unsubscribe cannot close a channel mid-send.
func (b *InMemoryBus) Publish(ctx context.Context, topic string) error {
	b.mu.Lock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- struct{}{}:
			b.delivered.Add(1)
		default:
		}
	}
	b.mu.Unlock()
	b.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe. The subscription is removed when ctx is
// cancelled.
func (b *InMemoryBus) Subscribe(ctx context.Context, topic string) (chan struct{}, error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), topic, ch)
	}()
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *InMemoryBus) Unsubscribe(ctx context.Context, topic string, ch chan struct{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, c := range subs {
		if c == ch {
			subs[i] = subs[len(subs)-1]
			subs = subs[:len(subs)-1]
			close(c)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, topic)
	} else {
		b.subs[topic] = subs
	}
	return nil
}

// Metrics returns the published and delivered counts.
func (b *InMemoryBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}
