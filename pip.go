package dispatch

import (
	"context"
	"sync"
)

// PipType distinguishes process pips from every other pip kind for
// queue-depth accounting. The core does not otherwise interpret it.
type PipType int

const (
	// PipTypeOther covers every pip kind the core does not special-case.
	PipTypeOther PipType = iota
	// PipTypeProcess marks a pip that runs an external process.
	PipTypeProcess
)

// RunnablePip is the unit of work a queue admits and executes. The core
// only ever reads Priority, Weight, PipType and IncludeInTracer, writes
// ThreadID, and invokes Run; everything else about a pip belongs to the
// pip graph and execution machinery, both out of scope for this package.
type RunnablePip interface {
	// Priority reports the pip's dispatch priority; higher dequeues first.
	Priority() int32
	// Weight reports the number of slots the pip occupies while running.
	Weight() int32
	// Type reports the pip's kind, for queue-depth accounting.
	Type() PipType
	// IncludeInTracer reports whether this pip should be assigned a
	// tracer thread ID for the duration of its run.
	IncludeInTracer() bool
	// SetThreadID is called by the core to assign (or clear, with -1) a
	// tracer thread ID before Run.
	SetThreadID(id int32)
	// Run executes the pip. The releaser must be released by the pip (or
	// on its behalf) exactly once, success or failure.
	Run(ctx context.Context, releaser *DispatcherReleaser) error
}

// DispatcherReleaser is a one-shot token returning a pip's slots to the
// queue that admitted it. Release is idempotent: only the first call has
// effect, every later call returns false.
//
// Release is not thread-safe in the sense that it is meant to be invoked
// from a single continuation point after a pip's Run returns — the mutex
// below guards only against that continuation racing a defensive second
// caller, not against genuinely concurrent use from multiple pips sharing
// one releaser (which would itself be a caller bug).
type DispatcherReleaser struct {
	mu    sync.Mutex
	queue *DispatcherQueue
}

func newDispatcherReleaser(q *DispatcherQueue) *DispatcherReleaser {
	return &DispatcherReleaser{queue: q}
}

// Release returns weight slots to the owning queue. It returns true on the
// first call and false on every subsequent call.
func (r *DispatcherReleaser) Release(weight int32) bool {
	r.mu.Lock()
	q := r.queue
	r.queue = nil
	r.mu.Unlock()

	if q == nil {
		return false
	}
	q.releaseResource(weight)
	return true
}
