package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChooseWorkerQueue_FastRestartDrainsQueue exercises the spec's
// fast-restart scenario: a completion continuation re-invokes StartTasks
// directly, without the outer scheduler's dispatch loop running again, as
// long as NumAcquiredSlots stays below MaxRunning.
func TestChooseWorkerQueue_FastRestartDrainsQueue(t *testing.T) {
	outer := newBlockingOuter()
	q := NewChooseWorkerQueue(outer, 2)
	defer q.Dispose()

	const n = 6
	for i := int32(0); i < n; i++ {
		require.NoError(t, q.Enqueue(newTestPip(i, 1)))
	}

	require.NoError(t, q.StartTasks())
	outer.waitForDecrements(n)

	assert.EqualValues(t, 0, q.NumQueued())
	assert.EqualValues(t, 0, q.NumAcquiredSlots())
	assert.Greater(t, q.FastChooseNextCount(), int64(0))
}

func TestChooseWorkerQueue_RunTimeAccumulates(t *testing.T) {
	outer := newBlockingOuter()
	q := NewChooseWorkerQueue(outer, 1)
	defer q.Dispose()

	p := newTestPip(1, 1)
	require.NoError(t, q.Enqueue(p))
	require.NoError(t, q.StartTasks())
	outer.waitForDecrements(1)

	assert.Greater(t, q.RunTime().Nanoseconds(), int64(0))
}

// TestChooseWorkerQueue_DisposeDuringLaunchIsTolerated covers the shutdown
// race: once Dispose has closed the dedicated pool, a launch that still
// reaches it is dropped and logged rather than panicking, and later Enqueue
// calls fail with ErrDisposed.
func TestChooseWorkerQueue_DisposeDuringLaunchIsTolerated(t *testing.T) {
	outer := newBlockingOuter()
	q := NewChooseWorkerQueue(outer, 1)

	p := newTestPip(1, 1)
	p.run = func(ctx context.Context, r *DispatcherReleaser) error {
		r.Release(1)
		return nil
	}
	require.NoError(t, q.Enqueue(p))
	require.NoError(t, q.StartTasks())
	outer.waitForDecrements(1)

	assert.NotPanics(t, func() { q.Dispose() })

	// A launch arriving after the pool closed is the dropped submission.
	assert.NotPanics(t, func() { q.startRunTaskAsync(newTestPip(1, 1), 1) })

	err := q.Enqueue(newTestPip(1, 1))
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestNewChooseWorkerQueue_ImplementsQueue(t *testing.T) {
	q := NewChooseWorkerQueue(newBlockingOuter(), 2)
	defer q.Dispose()

	var _ Queue = q
	assert.False(t, q.IsDisposed())
}
