package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// testPip is a minimal RunnablePip shared by dispatcherqueue_test.go and
// choose_worker_queue_test.go, kept in its own _test.go file so it never
// compiles into a non-test build of this package.

type testPip struct {
	priority        int32
	weight          int32
	pipType         PipType
	includeInTracer bool

	threadID atomic.Int32

	run func(ctx context.Context, releaser *DispatcherReleaser) error
}

func newTestPip(priority, weight int32) *testPip {
	p := &testPip{priority: priority, weight: weight}
	p.threadID.Store(-1)
	return p
}

func (p *testPip) Priority() int32        { return p.priority }
func (p *testPip) Weight() int32          { return p.weight }
func (p *testPip) Type() PipType          { return p.pipType }
func (p *testPip) IncludeInTracer() bool  { return p.includeInTracer }
func (p *testPip) SetThreadID(id int32)   { p.threadID.Store(id) }
func (p *testPip) ThreadID() int32        { return p.threadID.Load() }

func (p *testPip) Run(ctx context.Context, releaser *DispatcherReleaser) error {
	if p.run != nil {
		return p.run(ctx, releaser)
	}
	releaser.Release(p.weight)
	return nil
}

// blockingOuter is an OuterScheduler test double that counts callbacks and
// lets tests wait for a given number of DecrementRunningOrQueuedPips calls.
type blockingOuter struct {
	mu         sync.Mutex
	cond       *sync.Cond
	decrements int
	triggers   int
}

func newBlockingOuter() *blockingOuter {
	o := &blockingOuter{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *blockingOuter) DecrementRunningOrQueuedPips() {
	o.mu.Lock()
	o.decrements++
	o.cond.Broadcast()
	o.mu.Unlock()
}

func (o *blockingOuter) TriggerDispatcher() {
	o.mu.Lock()
	o.triggers++
	o.mu.Unlock()
}

func (o *blockingOuter) waitForDecrements(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.decrements < n {
		o.cond.Wait()
	}
}
