package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	dispatch "github.com/go-foundations/dispatchqueue"
	"github.com/go-foundations/dispatchqueue/metrics"
)

// simPip is a synthetic RunnablePip that sleeps for a random duration
// within [minWork, maxWork) and occasionally fails, to exercise a queue's
// admission and release paths under representative load.
type simPip struct {
	id       uuid.UUID
	priority int32
	weight   int32
	pipType  dispatch.PipType
	tracer   bool
	minWork  time.Duration
	maxWork  time.Duration
	failPct  int

	kind    dispatch.DispatcherKind
	metrics *metrics.Metrics

	threadID int32
}

func newSimPip(kind dispatch.DispatcherKind, m *metrics.Metrics, priority, weight int32, pipType dispatch.PipType, minWork, maxWork time.Duration, failPct int) *simPip {
	return &simPip{
		id:       uuid.New(),
		priority: priority,
		weight:   weight,
		pipType:  pipType,
		tracer:   pipType == dispatch.PipTypeProcess,
		minWork:  minWork,
		maxWork:  maxWork,
		failPct:  failPct,
		kind:     kind,
		metrics:  m,
		threadID: -1,
	}
}

func (p *simPip) Priority() int32        { return p.priority }
func (p *simPip) Weight() int32          { return p.weight }
func (p *simPip) Type() dispatch.PipType { return p.pipType }
func (p *simPip) IncludeInTracer() bool  { return p.tracer }
func (p *simPip) SetThreadID(id int32)   { p.threadID = id }

func (p *simPip) Run(ctx context.Context, releaser *dispatch.DispatcherReleaser) (err error) {
	defer releaser.Release(p.weight)

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordCompletion(p.kind, time.Since(start), err)
		}
	}()

	span := p.maxWork - p.minWork
	work := p.minWork
	if span > 0 {
		work += time.Duration(rand.Int63n(int64(span)))
	}

	select {
	case <-time.After(work):
	case <-ctx.Done():
		return ctx.Err()
	}

	if p.failPct > 0 && rand.Intn(100) < p.failPct {
		return fmt.Errorf("simulated failure for pip %s", p.id)
	}

	log.Debug().
		Str("pip_id", p.id.String()).
		Int32("priority", p.priority).
		Int32("thread_id", p.threadID).
		Dur("work", work).
		Msg("pip completed")
	return nil
}
