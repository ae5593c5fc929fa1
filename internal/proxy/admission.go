package proxy

import (
	"context"
	"time"

	imetrics "github.com/fclink/socks5fleet/internal/metrics"
)

// AdmissionGate bounds the number of concurrently handled client sessions.
//
// REDESIGN (spec.md §9): the original's _accept_client_loop polls
// threading.active_count() and sleeps in a loop until a worker slot frees up
// — coarse, unbounded-latency backpressure with no way for a caller to give
// up early. AdmissionGate replaces that with a buffered channel of slots:
// Acquire blocks only until a slot is free or ctx is canceled, and never
// busy-polls.
type AdmissionGate struct {
	slots chan struct{}
}

// NewAdmissionGate builds a gate allowing at most maxWorkers concurrent
// sessions. maxWorkers <= 0 means unbounded.
func NewAdmissionGate(maxWorkers int) *AdmissionGate {
	if maxWorkers <= 0 {
		return &AdmissionGate{}
	}
	return &AdmissionGate{slots: make(chan struct{}, maxWorkers)}
}

// Acquire blocks until a worker slot is available or ctx is canceled. The
// returned release func must be called exactly once to free the slot.
func (g *AdmissionGate) Acquire(ctx context.Context) (release func(), err error) {
	if g.slots == nil {
		return func() {}, nil
	}

	start := time.Now()
	select {
	case g.slots <- struct{}{}:
		imetrics.AdmissionWaitObserve(time.Since(start))
		imetrics.AdmissionInUseSet(len(g.slots))
		return func() {
			<-g.slots
			imetrics.AdmissionInUseSet(len(g.slots))
		}, nil
	case <-ctx.Done():
		imetrics.AdmissionRejectedInc()
		return nil, ctx.Err()
	}
}

// InUse reports the number of sessions currently holding a slot.
func (g *AdmissionGate) InUse() int {
	return len(g.slots)
}
