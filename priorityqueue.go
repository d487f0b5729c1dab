package dispatch

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
)

// blockCapacity is the fixed number of slots in each ItemBlock.
const blockCapacity = 512

// itemWithPriority pairs a priority with the item stored under it.
type itemWithPriority[T any] struct {
	priority int32
	item     T
}

// itemBlock is a fixed-capacity contiguous buffer holding items in
// descending priority order within a sliding window [firstIndex,
// firstIndex+count). minPriority/maxPriority bound every stored item;
// blocks cover the priority range and are kept in descending order, the
// i-th block's range lying above the (i+1)-th block's; the two halves of a
// split share the split priority as a common bound.
type itemBlock[T any] struct {
	items       []itemWithPriority[T]
	firstIndex  int
	count       int
	minPriority int32
	maxPriority int32
}

func newItemBlock[T any](minPriority, maxPriority int32) *itemBlock[T] {
	return &itemBlock[T]{
		items:       make([]itemWithPriority[T], blockCapacity),
		minPriority: minPriority,
		maxPriority: maxPriority,
	}
}

func (b *itemBlock[T]) full() bool { return b.count == blockCapacity }

// at returns the item at window-relative position i (0 is highest
// priority in this block).
func (b *itemBlock[T]) at(i int) itemWithPriority[T] { return b.items[b.firstIndex+i] }

// findInsertPos returns the window-relative position at which priority
// should be inserted to keep the block in descending order, placing equal
// priorities immediately after the existing run of that priority (relaxed
// FIFO — see spec.md §4.1).
func (b *itemBlock[T]) findInsertPos(priority int32) int {
	l, r := 0, b.count-1
	for l <= r {
		mid := (l + r) / 2
		p := b.at(mid).priority
		switch {
		case priority > p:
			r = mid - 1
		case priority < p:
			l = mid + 1
		default:
			l = mid + 1
		}
	}
	return l
}

// insert places (priority, item) at its sorted position. Caller must have
// already verified the block is not full.
func (b *itemBlock[T]) insert(priority int32, item T) {
	pos := b.findInsertPos(priority)

	leftCount := pos
	rightCount := b.count - pos

	canShiftLeft := b.firstIndex > 0
	canShiftRight := b.firstIndex+b.count < len(b.items)

	shiftLeft := canShiftLeft && (!canShiftRight || leftCount <= rightCount)

	if shiftLeft {
		// Move items[firstIndex..firstIndex+pos) left by one, open a gap
		// at absolute index firstIndex+pos-1.
		dst := b.firstIndex - 1
		for i := 0; i < pos; i++ {
			b.items[dst+i] = b.items[b.firstIndex+i]
		}
		b.firstIndex--
		b.items[b.firstIndex+pos] = itemWithPriority[T]{priority: priority, item: item}
	} else {
		// Move items[firstIndex+pos..firstIndex+count) right by one, open
		// a gap at absolute index firstIndex+pos.
		for i := b.count; i > pos; i-- {
			b.items[b.firstIndex+i] = b.items[b.firstIndex+i-1]
		}
		b.items[b.firstIndex+pos] = itemWithPriority[T]{priority: priority, item: item}
	}
	b.count++
}

// removeAt splices out the window-relative position i, sliding whichever
// side of the window is smaller. It reports the absolute index the caller
// should resume iterating from (the next lower-priority item, if any, is
// always found at the returned index after the slide).
func (b *itemBlock[T]) removeAt(i int) (resumeAt int) {
	leftCount := i
	rightCount := b.count - 1 - i

	absPos := b.firstIndex + i

	if leftCount <= rightCount {
		// Shift items[firstIndex..absPos) right by one; shrink from the
		// front.
		for j := i; j > 0; j-- {
			b.items[b.firstIndex+j] = b.items[b.firstIndex+j-1]
		}
		b.firstIndex++
		b.count--
		return absPos + 1
	}

	// Shift items[absPos+1..firstIndex+count) left by one; shrink from the
	// back.
	for j := i; j < b.count-1; j++ {
		b.items[b.firstIndex+j] = b.items[b.firstIndex+j+1]
	}
	b.count--
	return absPos
}

// split divides a full block in half by priority: the returned block holds
// the lower-priority half and is inserted immediately after this one.
func (b *itemBlock[T]) split() *itemBlock[T] {
	mid := b.count / 2
	splitPriority := b.at(mid).priority

	lower := newItemBlock[T](b.minPriority, splitPriority)
	lower.count = b.count - mid
	for i := 0; i < lower.count; i++ {
		lower.items[i] = b.at(mid + i)
	}

	b.count = mid
	b.minPriority = splitPriority

	return lower
}

// PriorityQueue is a thread-safe, unbounded-priority-range container
// ordered so that Dequeue always returns the highest remaining priority.
// It is built from fixed-capacity, range-partitioned blocks rather than a
// heap so that ProcessItems can walk and selectively remove items in
// priority order under a single lock, a property a heap cannot give
// efficiently.
//
// Equal priorities are ordered FIFO-ish but not strictly: a later insert
// lands after earlier ones within the same block, but a block split can
// reshuffle that relative order across the new block boundary. Callers
// must not depend on strict FIFO among equal priorities.
type PriorityQueue[T any] struct {
	mu             sync.Mutex
	blocks         []*itemBlock[T]
	inProcessItems atomic.Bool
}

// NewPriorityQueue creates an empty priority queue.
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{
		blocks: []*itemBlock[T]{newItemBlock[T](0, math.MaxInt32)},
	}
}

// lock acquires the queue's internal lock, returning ErrInvalidOperation
// instead of deadlocking if the current holder is mid-ProcessItems
// traversal (the caller is presumed to be a reentrant call from inside
// that traversal's callback — see DESIGN.md for why TryLock is used here
// instead of a reentrant mutex).
func (q *PriorityQueue[T]) lock() error {
	for {
		if q.mu.TryLock() {
			return nil
		}
		if q.inProcessItems.Load() {
			return ErrInvalidOperation
		}
		runtime.Gosched()
	}
}

// findBlockIndex returns the index of the block whose range contains
// priority. Blocks are sorted descending and cover [0, math.MaxInt32],
// so this always succeeds for a non-negative priority.
func (q *PriorityQueue[T]) findBlockIndex(priority int32) int {
	l, r := 0, len(q.blocks)-1
	for l < r {
		mid := (l + r) / 2
		b := q.blocks[mid]
		switch {
		case priority > b.maxPriority:
			r = mid
		case priority < b.minPriority:
			l = mid + 1
		default:
			return mid
		}
	}
	return l
}

// Enqueue inserts item under priority (priority must be >= 0), splitting
// the target block first if it is full.
func (q *PriorityQueue[T]) Enqueue(priority int32, item T) error {
	if err := q.lock(); err != nil {
		return err
	}
	defer q.mu.Unlock()

	bi := q.findBlockIndex(priority)
	if q.blocks[bi].full() {
		lower := q.blocks[bi].split()
		grown := make([]*itemBlock[T], len(q.blocks)+1)
		copy(grown, q.blocks[:bi+1])
		grown[bi+1] = lower
		copy(grown[bi+2:], q.blocks[bi+1:])
		q.blocks = grown
		bi = q.findBlockIndex(priority)
	}
	q.blocks[bi].insert(priority, item)
	return nil
}

// Dequeue removes and returns the single highest-priority item, or the
// zero value and false if the queue is empty.
func (q *PriorityQueue[T]) Dequeue() (item T, ok bool) {
	_ = q.ProcessItems(func(priority int32, it T) (remove, stop bool) {
		item = it
		ok = true
		return true, true
	})
	return item, ok
}

// Count returns the total number of stored items. It walks every block
// under the lock and is documented as non-performant — for diagnostics
// only. Production callers must track cardinality externally.
func (q *PriorityQueue[T]) Count() (int, error) {
	if err := q.lock(); err != nil {
		return 0, err
	}
	defer q.mu.Unlock()

	n := 0
	for _, b := range q.blocks {
		n += b.count
	}
	return n, nil
}

// ProcessItems walks blocks and items in descending priority order,
// invoking callback for each. If callback reports remove, the item is
// spliced out in place; if stop, the traversal ends immediately after
// that callback returns. The entire traversal runs under the queue's
// lock; callback must not call Enqueue or ProcessItems on this queue —
// doing so returns ErrInvalidOperation instead of deadlocking or
// corrupting the block list.
func (q *PriorityQueue[T]) ProcessItems(callback func(priority int32, item T) (remove, stop bool)) error {
	if err := q.lock(); err != nil {
		return err
	}
	q.inProcessItems.Store(true)
	defer func() {
		q.inProcessItems.Store(false)
		q.mu.Unlock()
	}()

	for bi := 0; bi < len(q.blocks); bi++ {
		b := q.blocks[bi]
		i := 0
		for i < b.count {
			entry := b.at(i)
			remove, stop := callback(entry.priority, entry.item)
			if remove {
				resumeAbs := b.removeAt(i)
				i = resumeAbs - b.firstIndex
				if b.count == 0 && len(q.blocks) > 1 {
					q.removeBlock(bi)
					bi--
					if stop {
						return nil
					}
					break
				}
			} else {
				i++
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// removeBlock deletes the now-empty block at index bi, widening a
// neighbor's bound to keep the partition a full covering of the priority
// range.
func (q *PriorityQueue[T]) removeBlock(bi int) {
	removed := q.blocks[bi]
	q.blocks = append(q.blocks[:bi], q.blocks[bi+1:]...)

	if bi < len(q.blocks) {
		// The next (lower-priority) block absorbs the gap from above.
		q.blocks[bi].maxPriority = removed.maxPriority
		return
	}
	if bi > 0 {
		// No lower neighbor: the previous (higher-priority) block
		// absorbs the gap from below.
		q.blocks[bi-1].minPriority = removed.minPriority
	}
}
