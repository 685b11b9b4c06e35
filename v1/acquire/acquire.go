package acquire

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-lockset/v1/lockset"
	"github.com/mirkobrombin/go-lockset/v1/metrics"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-lockset/v1/acquire")

// Guard is a held lock, read or write. Its release is normally driven by the
// owning Bundle; implementations do not need to tolerate double release.
type Guard interface {
	Release(ctx context.Context) error
}

// Resolver maps a lock name and access mode to an acquirable lock. It is a
// capability supplied by the caller's environment; the chain has no opinion on
// how names resolve to actual locks. Acquire blocks until the lock is obtained,
// the context is cancelled, or the backend reports an error.
type Resolver interface {
	Acquire(ctx context.Context, name string, mode lockset.Mode) (Guard, error)
}

// AcquisitionError reports the first request in the chain whose acquisition
// failed. Every guard acquired before it has already been released when the
// error surfaces.
type AcquisitionError struct {
	Name string
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %q: %v", e.Name, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Resolve acquires every lock in set, strictly in canonical order, using r.
// On success it returns a Bundle owning one guard per requested name. On the
// first failure it releases all previously acquired guards in reverse order
// and returns an AcquisitionError naming the failed request. Cancelling ctx
// between steps counts as a failure of the next step without invoking the
// resolver. An empty set succeeds with an empty Bundle and zero resolver calls.
func Resolve(ctx context.Context, set lockset.Set, r Resolver) (*Bundle, error) {
	reqs := set.Requests()
	ctx, span := tracer.Start(ctx, "lockset.Resolve",
		trace.WithAttributes(attribute.StringSlice("lockset.names", set.Names())))
	defer span.End()

	held := make([]heldGuard, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			metrics.AcquireFailureCounter.Inc()
			unwind(held)
			span.RecordError(err)
			return nil, &AcquisitionError{Name: req.Name, Err: err}
		}
		g, err := acquireOne(ctx, r, req)
		if err != nil {
			metrics.AcquireFailureCounter.Inc()
			unwind(held)
			span.RecordError(err)
			return nil, &AcquisitionError{Name: req.Name, Err: err}
		}
		metrics.AcquireCounter.Inc()
		metrics.HeldGauge.Inc()
		held = append(held, heldGuard{name: req.Name, guard: g})
	}
	return newBundle(held), nil
}

func acquireOne(ctx context.Context, r Resolver, req lockset.Request) (Guard, error) {
	ctx, span := tracer.Start(ctx, "lockset.Acquire",
		trace.WithAttributes(
			attribute.String("lock.name", req.Name),
			attribute.String("lock.mode", req.Mode.String()),
		))
	defer span.End()

	start := time.Now()
	g, err := r.Acquire(ctx, req.Name, req.Mode)
	metrics.AcquireWaitSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return g, nil
}

// unwind releases partially acquired guards in reverse order. It runs on a
// background context: the caller's context is typically already cancelled or
// associated with the failure, and releases must still go through.
func unwind(held []heldGuard) {
	for i := len(held) - 1; i >= 0; i-- {
		_ = held[i].guard.Release(context.Background())
		metrics.ReleaseCounter.Inc()
		metrics.HeldGauge.Dec()
	}
}
