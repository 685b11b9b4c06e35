package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mirkobrombin/go-lockset/v1/acquire"
	lockerrors "github.com/mirkobrombin/go-lockset/v1/errors"
	"github.com/mirkobrombin/go-lockset/v1/lockset"
)

func TestMemoryReadersShareWritersExclude(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r1, err := m.Acquire(ctx, "k", lockset.Read)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	r2, err := m.Acquire(ctx, "k", lockset.Read)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(cctx, "k", lockset.Write); err == nil {
		t.Fatal("write acquired while readers held")
	}

	if err := r1.Release(ctx); err != nil {
		t.Fatalf("release r1: %v", err)
	}
	if err := r2.Release(ctx); err != nil {
		t.Fatalf("release r2: %v", err)
	}

	w, err := m.Acquire(ctx, "k", lockset.Write)
	if err != nil {
		t.Fatalf("write after releases: %v", err)
	}
	defer w.Release(ctx)
}

func TestMemoryWriterExcludesReaders(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	w, err := m.Acquire(ctx, "k", lockset.Write)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := m.Acquire(cctx, "k", lockset.Read); err == nil {
		t.Fatal("read acquired while writer held")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("acquire did not respect context timeout")
	}

	if err := w.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	r, err := m.Acquire(ctx, "k", lockset.Read)
	if err != nil {
		t.Fatalf("read after release: %v", err)
	}
	defer r.Release(ctx)
}

func TestMemoryBlockedAcquireWakesOnRelease(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	w, err := m.Acquire(ctx, "k", lockset.Write)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	acquired := make(chan acquire.Guard, 1)
	go func() {
		g, err := m.Acquire(ctx, "k", lockset.Write)
		if err != nil {
			return
		}
		acquired <- g
	}()

	time.Sleep(10 * time.Millisecond)
	if err := w.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	select {
	case g := <-acquired:
		_ = g.Release(ctx)
	case <-time.After(time.Second):
		t.Fatal("blocked writer never woke up")
	}
}

func TestMemoryDoubleReleaseReturnsErrNotHeld(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	g, err := m.Acquire(ctx, "k", lockset.Write)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := g.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := g.Release(ctx); !errors.Is(err, lockerrors.ErrNotHeld) {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
}

func TestMemoryIndependentNames(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, err := m.Acquire(ctx, "a", lockset.Write)
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	defer a.Release(ctx)
	b, err := m.Acquire(ctx, "b", lockset.Write)
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	defer b.Release(ctx)
}

func TestMemoryWithAcquireChain(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	set, err := lockset.New([]string{"accounts"}, []string{"orders"})
	if err != nil {
		t.Fatalf("lockset: %v", err)
	}
	bundle, err := acquire.Resolve(ctx, set, m)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Another reader on "accounts" is fine, a writer on "orders" is not.
	if _, err := m.Acquire(ctx, "accounts", lockset.Read); err != nil {
		t.Fatalf("shared read: %v", err)
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(cctx, "orders", lockset.Write); err == nil {
		t.Fatal("orders acquired while bundle held")
	}

	if err := bundle.Release(ctx); err != nil {
		t.Fatalf("bundle release: %v", err)
	}
	g, err := m.Acquire(ctx, "orders", lockset.Write)
	if err != nil {
		t.Fatalf("orders after bundle release: %v", err)
	}
	_ = g.Release(ctx)
}
