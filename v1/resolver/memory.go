package resolver

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/mirkobrombin/go-lockset/v1/acquire"
	lockerrors "github.com/mirkobrombin/go-lockset/v1/errors"
	"github.com/mirkobrombin/go-lockset/v1/lockset"
)

// maxReaders bounds concurrent readers per lock; a writer takes the full
// weight, so it excludes readers and other writers alike.
const maxReaders = 1 << 30

// Memory implements acquire.Resolver with in-process read/write locks,
// created lazily per name. Blocking acquisitions respect the context.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// NewMemory returns a new in-memory resolver.
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*semaphore.Weighted)}
}

func (m *Memory) lock(name string) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[name]; ok {
		return l
	}
	l := semaphore.NewWeighted(maxReaders)
	m.locks[name] = l
	return l
}

// Acquire implements acquire.Resolver.
func (m *Memory) Acquire(ctx context.Context, name string, mode lockset.Mode) (acquire.Guard, error) {
	sem := m.lock(name)
	weight := int64(1)
	if mode == lockset.Write {
		weight = maxReaders
	}
	if err := sem.Acquire(ctx, weight); err != nil {
		return nil, err
	}
	return &memoryGuard{sem: sem, weight: weight}, nil
}

type memoryGuard struct {
	sem    *semaphore.Weighted
	weight int64

	mu       sync.Mutex
	released bool
}

// Release frees the lock. Releasing twice returns ErrNotHeld.
func (g *memoryGuard) Release(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return lockerrors.ErrNotHeld
	}
	g.released = true
	g.sem.Release(g.weight)
	return nil
}
