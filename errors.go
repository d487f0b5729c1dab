package dispatch

import "errors"

// ErrDisposed is returned by any public mutator called after Dispose.
var ErrDisposed = errors.New("dispatch: queue is disposed")

// ErrInvalidOperation is returned for reentrant PriorityQueue traversal
// calls and for scheduling onto an already-disposed dedicated pool.
var ErrInvalidOperation = errors.New("dispatch: invalid operation")
