package acquire

import (
	"context"
	"sync"

	"github.com/mirkobrombin/go-lockset/v1/metrics"
)

type heldGuard struct {
	name  string
	guard Guard
}

// Bundle owns the guards of a fully successful acquisition, keyed by name.
// It is created only when every request in the set succeeded. Release frees
// all guards; calling it again is a no-op.
type Bundle struct {
	mu       sync.Mutex
	held     []heldGuard
	byName   map[string]Guard
	released bool
}

func newBundle(held []heldGuard) *Bundle {
	byName := make(map[string]Guard, len(held))
	for _, h := range held {
		byName[h.name] = h.guard
	}
	return &Bundle{held: held, byName: byName}
}

// Guard returns the held guard for name, if the bundle contains it and has not
// been released.
func (b *Bundle) Guard(name string) (Guard, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, false
	}
	g, ok := b.byName[name]
	return g, ok
}

// Names returns the guarded names in canonical order.
func (b *Bundle) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.held))
	for i, h := range b.held {
		names[i] = h.name
	}
	return names
}

// Len returns the number of guards in the bundle.
func (b *Bundle) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.held)
}

// Release frees every guard in reverse canonical order. All guards are
// attempted even if one fails; the first error is returned. Subsequent calls
// return nil without touching the guards again.
func (b *Bundle) Release(ctx context.Context) error {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return nil
	}
	b.released = true
	held := b.held
	b.mu.Unlock()

	var first error
	for i := len(held) - 1; i >= 0; i-- {
		if err := held[i].guard.Release(ctx); err != nil && first == nil {
			first = err
		}
		metrics.ReleaseCounter.Inc()
		metrics.HeldGauge.Dec()
	}
	return first
}
