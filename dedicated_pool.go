package dispatch

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// dedicatedPool is a fixed-size pinned pool of named goroutines, isolated
// from the ambient task scheduler so ChooseWorkerQueue's latency-sensitive
// runs never compete with long-running pip execution elsewhere.
//
// Submit and Dispose race safely: Dispose takes the write side of mu to
// flip disposed and close the task channel, so no goroutine can ever send
// on a closed channel — the same pattern the teacher uses for ctxMu to
// guard a field read by many goroutines and cleared by one.
type dedicatedPool struct {
	mu       sync.RWMutex
	tasks    chan func()
	disposed bool
	wg       sync.WaitGroup
}

func newDedicatedPool(size int32, name string) *dedicatedPool {
	p := &dedicatedPool{tasks: make(chan func(), size)}
	for i := int32(0); i < size; i++ {
		p.wg.Add(1)
		go p.worker(fmt.Sprintf("%s %d", name, i))
	}
	return p
}

// Go has no native thread naming; the name is carried as a log label on
// the worker's goroutine instead, the nearest equivalent for diagnostics.
func (p *dedicatedPool) worker(name string) {
	defer p.wg.Done()
	log.Debug().Str("pool_worker", name).Msg("dedicated pool worker started")
	for fn := range p.tasks {
		fn()
	}
	log.Debug().Str("pool_worker", name).Msg("dedicated pool worker stopped")
}

// Submit enqueues fn to run on one of the pool's goroutines. It never
// blocks waiting for fn to run. Submitting to a disposed pool returns
// ErrInvalidOperation.
func (p *dedicatedPool) Submit(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.disposed {
		return ErrInvalidOperation
	}
	p.tasks <- fn
	return nil
}

// Dispose stops accepting new work and waits for in-flight tasks to drain.
func (p *dedicatedPool) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
