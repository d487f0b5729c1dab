// Package dispatch provides the work-dispatch core of a build engine: a set
// of bounded, priority-ordered queues that admit runnable pips and release
// them to execution according to per-queue parallelism and weight budgets.
//
// The package supports:
// - An unbounded-priority blocked queue with O(log n) enqueue and an
//   in-place walk-and-selectively-remove traversal under a single lock
// - Weighted-slot admission control with bounded concurrency and a fast
//   restart path
// - A dedicated-thread-pool variant for latency-sensitive worker selection
// - A fixed taxonomy of queue kinds an outer scheduler composes
package dispatch
