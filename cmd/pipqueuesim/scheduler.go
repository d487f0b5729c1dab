package main

import (
	"sync"

	"github.com/rs/zerolog/log"

	dispatch "github.com/go-foundations/dispatchqueue"
	"github.com/go-foundations/dispatchqueue/metrics"
)

// pipScheduler is a minimal outer scheduler: it owns one dispatch.Queue per
// DispatcherKind and implements dispatch.OuterScheduler so every queue can
// report completions and request a re-dispatch. A real build engine's outer
// scheduler also decides routing and priority; this demo only fans work out
// across the kinds it constructs.
type pipScheduler struct {
	queues  map[dispatch.DispatcherKind]dispatch.Queue
	metrics *metrics.Metrics

	wg sync.WaitGroup
}

var allKinds = []dispatch.DispatcherKind{
	dispatch.KindIO,
	dispatch.KindCPU,
	dispatch.KindLight,
	dispatch.KindIpcPips,
	dispatch.KindCacheLookup,
	dispatch.KindSealDirs,
	dispatch.KindDelayedCacheLookup,
	dispatch.KindMaterialize,
	dispatch.KindChooseWorkerCPU,
	dispatch.KindChooseWorkerCacheLookup,
	dispatch.KindChooseWorkerLight,
	dispatch.KindChooseWorkerIpc,
}

func newPipScheduler(m *metrics.Metrics, maxParallelDegree int32, useWeight bool) *pipScheduler {
	s := &pipScheduler{
		queues:  make(map[dispatch.DispatcherKind]dispatch.Queue, len(allKinds)),
		metrics: m,
	}
	for _, kind := range allKinds {
		s.queues[kind] = dispatch.NewQueue(s, kind, maxParallelDegree, useWeight)
	}
	return s
}

// DecrementRunningOrQueuedPips implements dispatch.OuterScheduler.
func (s *pipScheduler) DecrementRunningOrQueuedPips() {
	s.wg.Done()
}

// TriggerDispatcher implements dispatch.OuterScheduler. It asks every
// queue to admit more work, since a slot freed on one queue says nothing
// about which queue freed it.
func (s *pipScheduler) TriggerDispatcher() {
	for kind, q := range s.queues {
		if err := q.StartTasks(); err != nil {
			log.Debug().Stringer("kind", kind).Err(err).Msg("start tasks skipped")
		}
	}
}

// enqueue submits pip to the queue for kind and counts it against the
// scheduler's completion wait group.
func (s *pipScheduler) enqueue(kind dispatch.DispatcherKind, pip dispatch.RunnablePip) error {
	q := s.queues[kind]
	s.wg.Add(1)
	if err := q.Enqueue(pip); err != nil {
		s.wg.Done()
		return err
	}
	return nil
}

// dispatchAll starts admission on every queue once, the way an outer
// scheduler's own loop iteration would after a batch of enqueues.
func (s *pipScheduler) dispatchAll() {
	for kind, q := range s.queues {
		if err := q.StartTasks(); err != nil {
			log.Debug().Stringer("kind", kind).Err(err).Msg("start tasks skipped")
		}
	}
}

// wait blocks until every enqueued pip has completed.
func (s *pipScheduler) wait() {
	s.wg.Wait()
}

// reportAll samples every queue's observability reads into metrics.
func (s *pipScheduler) reportAll() {
	if s.metrics == nil {
		return
	}
	for kind, q := range s.queues {
		s.metrics.ReportQueue(kind, q)
	}
}

// disposeAll disposes every queue during shutdown, in no particular order.
func (s *pipScheduler) disposeAll() {
	for _, q := range s.queues {
		q.Dispose()
	}
}
