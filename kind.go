package dispatch

// DispatcherKind names the queue roles an outer scheduler instantiates.
// The set is fixed at compile time; the core attaches no behavior to a
// kind beyond which of the two queue implementations it selects and the
// construction-time parameters (maxParallelDegree, useWeight) the outer
// scheduler supplies.
type DispatcherKind int

const (
	KindIO DispatcherKind = iota
	KindCPU
	KindLight
	KindIpcPips
	KindCacheLookup
	KindSealDirs
	KindDelayedCacheLookup
	KindMaterialize
	KindChooseWorkerCPU
	KindChooseWorkerCacheLookup
	KindChooseWorkerLight
	KindChooseWorkerIpc
)

// String returns a human-readable name, mainly for metric labels and logs.
func (k DispatcherKind) String() string {
	switch k {
	case KindIO:
		return "IO"
	case KindCPU:
		return "CPU"
	case KindLight:
		return "Light"
	case KindIpcPips:
		return "IpcPips"
	case KindCacheLookup:
		return "CacheLookup"
	case KindSealDirs:
		return "SealDirs"
	case KindDelayedCacheLookup:
		return "DelayedCacheLookup"
	case KindMaterialize:
		return "Materialize"
	case KindChooseWorkerCPU:
		return "ChooseWorkerCpu"
	case KindChooseWorkerCacheLookup:
		return "ChooseWorkerCacheLookup"
	case KindChooseWorkerLight:
		return "ChooseWorkerLight"
	case KindChooseWorkerIpc:
		return "ChooseWorkerIpc"
	default:
		return "Unknown"
	}
}

// IsChooseWorker reports whether kind is one of the worker-selection
// kinds, which the core runs as a ChooseWorkerQueue (C4) rather than a
// plain DispatcherQueue (C3).
func (k DispatcherKind) IsChooseWorker() bool {
	switch k {
	case KindChooseWorkerCPU, KindChooseWorkerCacheLookup, KindChooseWorkerLight, KindChooseWorkerIpc:
		return true
	default:
		return false
	}
}

// Queue is the surface both DispatcherQueue and ChooseWorkerQueue expose
// to an outer scheduler, letting it hold a uniform collection of queues
// across kinds regardless of which concrete type backs each one.
type Queue interface {
	Enqueue(pip RunnablePip) error
	StartTasks() error
	AdjustParallelDegree(newDegree int32) bool
	Dispose()
	NumAcquiredSlots() int32
	NumRunningPips() int32
	NumQueued() int32
	NumProcessesQueued() int32
	MaxRunning() int32
	MaxParallelDegree() int32
	IsDisposed() bool
}

// NewQueue constructs the queue implementation kind requires: a
// ChooseWorkerQueue for worker-selection kinds, a plain DispatcherQueue
// otherwise. This is the taxonomy's only behavioral content — a shape
// constraint on how C3 and C4 are composed, mirroring the teacher's own
// DistributionStrategy enum + StrategyFactory.CreateStrategy.
func NewQueue(outer OuterScheduler, kind DispatcherKind, maxParallelDegree int32, useWeight bool) Queue {
	if kind.IsChooseWorker() {
		return NewChooseWorkerQueue(outer, maxParallelDegree)
	}
	return NewDispatcherQueue(outer, maxParallelDegree, useWeight)
}
