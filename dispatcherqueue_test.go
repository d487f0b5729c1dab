package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherQueue_RunsSinglePip(t *testing.T) {
	outer := newBlockingOuter()
	q := NewDispatcherQueue(outer, 2, false)

	p := newTestPip(1, 1)
	require.NoError(t, q.Enqueue(p))
	require.NoError(t, q.StartTasks())

	outer.waitForDecrements(1)
	assert.EqualValues(t, 0, q.NumAcquiredSlots())
	assert.EqualValues(t, 0, q.NumRunningPips())
	assert.EqualValues(t, 0, q.NumQueued())
}

// TestDispatcherQueue_WeightAdmission exercises the scenario where a
// high-weight pip occupies most of the budget, forcing a lower-priority
// pip to be deferred until the first releases.
func TestDispatcherQueue_WeightAdmission(t *testing.T) {
	outer := newBlockingOuter()
	q := NewDispatcherQueue(outer, 4, true)

	p1Release := make(chan struct{})
	p1Started := make(chan struct{})
	p1 := newTestPip(30, 3)
	p1.run = func(ctx context.Context, r *DispatcherReleaser) error {
		close(p1Started)
		<-p1Release
		r.Release(3)
		return nil
	}
	p2 := newTestPip(20, 2)
	p3 := newTestPip(10, 1)

	require.NoError(t, q.Enqueue(p1))
	require.NoError(t, q.Enqueue(p2))
	require.NoError(t, q.Enqueue(p3))

	require.NoError(t, q.StartTasks())
	<-p1Started

	assert.EqualValues(t, 3, q.NumAcquiredSlots())
	assert.EqualValues(t, 1, q.NumRunningPips())
	assert.EqualValues(t, 2, q.NumQueued())

	close(p1Release)
	outer.waitForDecrements(1)
	assert.EqualValues(t, 0, q.NumAcquiredSlots())

	require.NoError(t, q.StartTasks())
	outer.waitForDecrements(3)
	assert.EqualValues(t, 0, q.NumQueued())
	assert.EqualValues(t, 0, q.NumAcquiredSlots())
}

// TestDispatcherQueue_OversizeBypass exercises admitting a pip heavier than
// the entire budget when the queue is otherwise idle.
func TestDispatcherQueue_OversizeBypass(t *testing.T) {
	outer := newBlockingOuter()
	q := NewDispatcherQueue(outer, 2, true)

	release := make(chan struct{})
	started := make(chan struct{})
	p := newTestPip(1, 5)
	p.run = func(ctx context.Context, r *DispatcherReleaser) error {
		close(started)
		<-release
		return nil
	}

	require.NoError(t, q.Enqueue(p))
	require.NoError(t, q.StartTasks())
	<-started

	assert.EqualValues(t, 5, q.NumAcquiredSlots())
	assert.EqualValues(t, 5, q.MaxRunning())

	close(release)
	outer.waitForDecrements(1)
	assert.EqualValues(t, 0, q.NumAcquiredSlots())
	assert.EqualValues(t, 5, q.MaxRunning())
}

func TestDispatcherQueue_AdjustParallelDegree(t *testing.T) {
	q := NewDispatcherQueue(newBlockingOuter(), 4, false)
	assert.True(t, q.AdjustParallelDegree(8))
	assert.EqualValues(t, 8, q.MaxParallelDegree())
	assert.False(t, q.AdjustParallelDegree(8))
}

// TestDispatcherQueue_SerializesAtDegreeOne drives StartTasks manually,
// the way an outer scheduler's TriggerDispatcher callback would, and
// checks no two pips ever run concurrently when maxParallelDegree is 1.
func TestDispatcherQueue_SerializesAtDegreeOne(t *testing.T) {
	outer := newBlockingOuter()
	q := NewDispatcherQueue(outer, 1, false)

	var concurrent atomic.Int32
	var maxConcurrent atomic.Int32
	const n = 5
	for i := int32(0); i < n; i++ {
		p := newTestPip(i, 1)
		p.run = func(ctx context.Context, r *DispatcherReleaser) error {
			c := concurrent.Add(1)
			for {
				cur := maxConcurrent.Load()
				if c <= cur || maxConcurrent.CompareAndSwap(cur, c) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			concurrent.Add(-1)
			return nil
		}
		require.NoError(t, q.Enqueue(p))
	}

	for i := 1; i <= n; i++ {
		require.NoError(t, q.StartTasks())
		outer.waitForDecrements(i)
	}

	assert.EqualValues(t, 1, maxConcurrent.Load())
	assert.EqualValues(t, 0, q.NumQueued())
}

func TestDispatcherQueue_ReleasesSlotsEvenOnRunError(t *testing.T) {
	outer := newBlockingOuter()
	q := NewDispatcherQueue(outer, 2, true)

	p := newTestPip(1, 2)
	p.run = func(ctx context.Context, r *DispatcherReleaser) error {
		return errors.New("boom")
	}

	require.NoError(t, q.Enqueue(p))
	require.NoError(t, q.StartTasks())
	outer.waitForDecrements(1)
	assert.EqualValues(t, 0, q.NumAcquiredSlots())
}

func TestDispatcherReleaser_ReleaseIsIdempotent(t *testing.T) {
	outer := newBlockingOuter()
	q := NewDispatcherQueue(outer, 2, true)

	var releaserRef *DispatcherReleaser
	p := newTestPip(1, 2)
	p.run = func(ctx context.Context, r *DispatcherReleaser) error {
		releaserRef = r
		assert.True(t, r.Release(2))
		assert.False(t, r.Release(2))
		return nil
	}

	require.NoError(t, q.Enqueue(p))
	require.NoError(t, q.StartTasks())
	outer.waitForDecrements(1)
	assert.EqualValues(t, 0, q.NumAcquiredSlots())
	assert.False(t, releaserRef.Release(2))
}

func TestDispatcherQueue_EnqueueAfterDisposeFails(t *testing.T) {
	q := NewDispatcherQueue(newBlockingOuter(), 2, false)
	q.Dispose()

	err := q.Enqueue(newTestPip(1, 1))
	assert.ErrorIs(t, err, ErrDisposed)

	err = q.StartTasks()
	assert.ErrorIs(t, err, ErrDisposed)
	assert.True(t, q.IsDisposed())
}
