package dispatch

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// OuterScheduler is the outer collaborator every queue reports back to: it
// decides routing among queues and owns the dispatch loop that calls
// StartTasks. The core never calls back into the outer scheduler except
// through this interface.
type OuterScheduler interface {
	// DecrementRunningOrQueuedPips is called at the end of every pip run.
	DecrementRunningOrQueuedPips()
	// TriggerDispatcher is called whenever a slot is released, so the
	// outer scheduler knows more dispatch work may now be possible.
	TriggerDispatcher()
}

// threadIDStack is a concurrent LIFO of tracer thread IDs in [0,
// maxParallelDegree). Pop is non-blocking and may fail; a failed pop is an
// accepted degraded mode (no tracer slot this run).
type threadIDStack struct {
	mu  sync.Mutex
	ids []int32
}

func newThreadIDStack(n int32) *threadIDStack {
	ids := make([]int32, n)
	for i := range ids {
		ids[i] = int32(i)
	}
	return &threadIDStack{ids: ids}
}

func (s *threadIDStack) pop() (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return -1, false
	}
	last := len(s.ids) - 1
	id := s.ids[last]
	s.ids = s.ids[:last]
	return id, true
}

func (s *threadIDStack) push(id int32) {
	s.mu.Lock()
	s.ids = append(s.ids, id)
	s.mu.Unlock()
}

// pipLauncher is the pluggable "get this pip's run started" step.
// DispatcherQueue's base implementation yields to the ambient scheduler
// before running; ChooseWorkerQueue overrides it to run on a dedicated
// pinned pool instead. This mirrors the Strategy pattern the teacher uses
// for pluggable job distribution, applied here to the launch step alone.
type pipLauncher func(pip RunnablePip, slots int32)

// DispatcherQueue is a bounded, weighted, priority-ordered dispatcher: it
// combines a PriorityQueue with weighted-slot admission control, bounded
// concurrency, a restartable admission loop, and lifecycle-safe release
// semantics.
type DispatcherQueue struct {
	outer     OuterScheduler
	useWeight bool

	maxParallelDegree atomic.Int32
	numAcquiredSlots  atomic.Int32
	numRunningPips    atomic.Int32
	numQueuedPips     atomic.Int32
	numQueuedProcess  atomic.Int32
	maxRunning        atomic.Int32
	disposed          atomic.Bool

	threadIDs *threadIDStack

	// pq is read without the admission lock so Enqueue never contends with
	// a StartTasks drain holding admissionMu for its whole loop; Dispose
	// clears it to nil to signal "disposed" to any in-flight Enqueue.
	pq atomic.Pointer[PriorityQueue[RunnablePip]]

	// admissionMu serializes StartTasks' admission loop only; Enqueue does
	// not take it (see pq above and spec.md §4.3).
	admissionMu sync.Mutex

	launch pipLauncher
}

// NewDispatcherQueue constructs a dispatcher queue. useWeight selects
// whether admission is budgeted by pip.Weight() (true) or by pip count
// (false, one slot per pip).
func NewDispatcherQueue(outer OuterScheduler, maxParallelDegree int32, useWeight bool) *DispatcherQueue {
	q := newDispatcherQueueCore(outer, maxParallelDegree, useWeight)
	q.launch = q.startRunTaskAsync
	return q
}

// newDispatcherQueueCore builds the shared state without wiring the launch
// step, so ChooseWorkerQueue can install its own before anything runs.
func newDispatcherQueueCore(outer OuterScheduler, maxParallelDegree int32, useWeight bool) *DispatcherQueue {
	q := &DispatcherQueue{
		outer:     outer,
		useWeight: useWeight,
		threadIDs: newThreadIDStack(maxParallelDegree),
	}
	q.pq.Store(NewPriorityQueue[RunnablePip]())
	q.maxParallelDegree.Store(maxParallelDegree)
	return q
}

// Enqueue admits pip into the priority queue keyed by its priority. It
// never takes admissionMu — only StartTasks' admission loop does — so a
// long-running StartTasks drain can never stall a caller's Enqueue. The
// priority-queue pointer itself is read via an atomic load, and the
// priority queue's own internal lock guards the insert.
func (q *DispatcherQueue) Enqueue(pip RunnablePip) error {
	if q.disposed.Load() {
		return ErrDisposed
	}

	pq := q.pq.Load()
	if pq == nil {
		return ErrDisposed
	}

	if err := pq.Enqueue(pip.Priority(), pip); err != nil {
		return err
	}
	q.numQueuedPips.Add(1)
	if pip.Type() == PipTypeProcess {
		q.numQueuedProcess.Add(1)
	}
	return nil
}

// StartTasks repeatedly dequeues and launches the highest-priority pip
// that fits the remaining weighted-slot budget, until the queue empties or
// capacity is exhausted. The whole loop runs under the admission lock,
// serializing launches across every caller (outer scheduler, completion
// fast-paths, worker-selection callbacks).
func (q *DispatcherQueue) StartTasks() error {
	if q.disposed.Load() {
		return ErrDisposed
	}

	q.admissionMu.Lock()
	defer q.admissionMu.Unlock()

	for {
		if q.disposed.Load() {
			return ErrDisposed
		}

		budget := q.maxParallelDegree.Load()
		if q.numAcquiredSlots.Load() >= budget {
			return nil
		}

		pip, ok := q.dequeueLocked()
		if !ok {
			return nil
		}

		slots := int32(1)
		if q.useWeight {
			slots = pip.Weight()
		}

		acquired := q.numAcquiredSlots.Load()
		oversizeBypass := acquired == 0 && slots > budget
		if !oversizeBypass && acquired+slots > budget {
			q.reenqueueLocked(pip)
			return nil
		}

		q.numRunningPips.Add(1)
		newAcquired := q.numAcquiredSlots.Add(slots)
		q.bumpMaxRunning(newAcquired)
		q.launch(pip, slots)
	}
}

// dequeueLocked/reenqueueLocked assume admissionMu is already held, as it
// is for the whole of StartTasks; they only touch the pq atomic pointer and
// counters, never admissionMu itself.
func (q *DispatcherQueue) dequeueLocked() (RunnablePip, bool) {
	pq := q.pq.Load()
	if pq == nil {
		return nil, false
	}
	if q.numQueuedPips.Load() <= 0 {
		return nil, false
	}
	q.numQueuedPips.Add(-1)
	pip, ok := pq.Dequeue()
	if !ok {
		return nil, false
	}
	if pip.Type() == PipTypeProcess {
		q.numQueuedProcess.Add(-1)
	}
	return pip, true
}

func (q *DispatcherQueue) reenqueueLocked(pip RunnablePip) {
	pq := q.pq.Load()
	if pq == nil {
		return
	}
	_ = pq.Enqueue(pip.Priority(), pip)
	q.numQueuedPips.Add(1)
	if pip.Type() == PipTypeProcess {
		q.numQueuedProcess.Add(1)
	}
}

func (q *DispatcherQueue) bumpMaxRunning(candidate int32) {
	for {
		cur := q.maxRunning.Load()
		if candidate <= cur {
			return
		}
		if q.maxRunning.CompareAndSwap(cur, candidate) {
			return
		}
	}
}

// startRunTaskAsync is the base (non-choose-worker) launch step: it yields
// once to the ambient scheduler before running, so that
// Enqueue->StartTasks->launch never runs a pip synchronously on the
// caller's goroutine.
func (q *DispatcherQueue) startRunTaskAsync(pip RunnablePip, slots int32) {
	go func() {
		runtime.Gosched()
		q.runCoreAsync(pip, slots)
	}()
}

// runCoreAsync assigns a tracer thread ID (if requested and available),
// runs the pip, and unconditionally releases its slots and counters
// regardless of how Run returns.
func (q *DispatcherQueue) runCoreAsync(pip RunnablePip, slots int32) {
	releaser := newDispatcherReleaser(q)

	var threadID int32 = -1
	gotThreadID := false
	if pip.IncludeInTracer() {
		if id, ok := q.threadIDs.pop(); ok {
			threadID = id
			gotThreadID = true
		}
	}
	pip.SetThreadID(threadID)

	defer func() {
		if gotThreadID {
			q.threadIDs.push(threadID)
		}
		releaser.Release(slots)
		q.numRunningPips.Add(-1)
		q.outer.DecrementRunningOrQueuedPips()
	}()

	if err := pip.Run(context.Background(), releaser); err != nil {
		q.reportRunFailure(pip, err)
	}
}

// releaseResource is invoked by a DispatcherReleaser; it may be called
// from any goroutine.
func (q *DispatcherQueue) releaseResource(weight int32) {
	delta := int32(1)
	if q.useWeight {
		delta = weight
	}
	q.numAcquiredSlots.Add(-delta)
	q.outer.TriggerDispatcher()
}

// AdjustParallelDegree atomically replaces maxParallelDegree. It returns
// true iff the value actually changed. Running work is never preempted;
// the new budget takes effect on the next StartTasks iteration.
func (q *DispatcherQueue) AdjustParallelDegree(newDegree int32) bool {
	for {
		old := q.maxParallelDegree.Load()
		if old == newDegree {
			return false
		}
		if q.maxParallelDegree.CompareAndSwap(old, newDegree) {
			return true
		}
	}
}

// Dispose marks the queue disposed and drops its priority queue reference.
// Concurrent or subsequent Enqueue/StartTasks calls fail with ErrDisposed.
// Running pips are not interrupted; dispose only prevents new admissions.
func (q *DispatcherQueue) Dispose() {
	q.disposed.Store(true)
	q.admissionMu.Lock()
	q.pq.Store(nil)
	q.admissionMu.Unlock()
}

// Observability reads, safe from any goroutine.

func (q *DispatcherQueue) NumAcquiredSlots() int32   { return q.numAcquiredSlots.Load() }
func (q *DispatcherQueue) NumRunningPips() int32     { return q.numRunningPips.Load() }
func (q *DispatcherQueue) NumQueued() int32          { return q.numQueuedPips.Load() }
func (q *DispatcherQueue) NumProcessesQueued() int32 { return q.numQueuedProcess.Load() }
func (q *DispatcherQueue) MaxRunning() int32         { return q.maxRunning.Load() }
func (q *DispatcherQueue) MaxParallelDegree() int32  { return q.maxParallelDegree.Load() }
func (q *DispatcherQueue) IsDisposed() bool          { return q.disposed.Load() }
