// Package metrics provides Prometheus reporting for dispatch queues.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dispatch "github.com/go-foundations/dispatchqueue"
)

// Metrics holds the gauges and counters reported per DispatcherKind.
type Metrics struct {
	AcquiredSlots   *prometheus.GaugeVec
	RunningPips     *prometheus.GaugeVec
	QueuedPips      *prometheus.GaugeVec
	QueuedProcesses *prometheus.GaugeVec
	MaxRunning      *prometheus.GaugeVec
	ParallelDegree  *prometheus.GaugeVec

	FastRestarts *prometheus.CounterVec
	RunTime      *prometheus.CounterVec

	PipsCompleted *prometheus.CounterVec
	PipRunErrors  *prometheus.CounterVec
	PipDuration   *prometheus.HistogramVec

	// cumulativeMu guards the last-seen cumulative reads ReportQueue needs
	// to turn ChooseWorkerQueue's lifetime counters into per-call deltas.
	cumulativeMu     sync.Mutex
	lastFastRestarts map[dispatch.DispatcherKind]int64
	lastRunTimeNanos map[dispatch.DispatcherKind]int64
}

// NewMetrics creates and registers the queue metrics against registry. A nil
// registry registers against prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	m := &Metrics{
		AcquiredSlots: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatchqueue_acquired_slots",
				Help: "Slots currently held by running pips.",
			},
			[]string{"kind"},
		),

		RunningPips: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatchqueue_running_pips",
				Help: "Pips currently executing.",
			},
			[]string{"kind"},
		),

		QueuedPips: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatchqueue_queued_pips",
				Help: "Pips waiting for admission.",
			},
			[]string{"kind"},
		),

		QueuedProcesses: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatchqueue_queued_processes",
				Help: "Process-type pips waiting for admission.",
			},
			[]string{"kind"},
		),

		MaxRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatchqueue_max_running",
				Help: "High-water mark of acquired slots since the queue was created.",
			},
			[]string{"kind"},
		),

		ParallelDegree: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dispatchqueue_max_parallel_degree",
				Help: "Configured slot budget.",
			},
			[]string{"kind"},
		),

		FastRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatchqueue_fast_restarts_total",
				Help: "Completion continuations that restarted the admission loop directly.",
			},
			[]string{"kind"},
		),

		RunTime: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatchqueue_run_seconds_total",
				Help: "Cumulative wall-clock time spent running pips on a dedicated pool.",
			},
			[]string{"kind"},
		),

		PipsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatchqueue_pips_completed_total",
				Help: "Pips whose run finished, success or failure.",
			},
			[]string{"kind", "result"},
		),

		PipRunErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatchqueue_pip_run_errors_total",
				Help: "Pip runs that returned an error.",
			},
			[]string{"kind"},
		),

		PipDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatchqueue_pip_duration_seconds",
				Help:    "Pip run duration in seconds.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 60},
			},
			[]string{"kind"},
		),

		lastFastRestarts: make(map[dispatch.DispatcherKind]int64),
		lastRunTimeNanos: make(map[dispatch.DispatcherKind]int64),
	}
	return m
}

// ReportQueue samples the observability reads of q under label kind and
// writes them to the gauges. An outer scheduler calls this on an interval,
// the way it would poll any other internal collection. FastRestarts and
// RunTime are backed by ChooseWorkerQueue's lifetime counters, so each call
// reports only the delta since the previous call for that kind, keeping
// them valid Prometheus counters instead of re-adding the running total.
func (m *Metrics) ReportQueue(kind dispatch.DispatcherKind, q dispatch.Queue) {
	label := kind.String()
	m.AcquiredSlots.WithLabelValues(label).Set(float64(q.NumAcquiredSlots()))
	m.RunningPips.WithLabelValues(label).Set(float64(q.NumRunningPips()))
	m.QueuedPips.WithLabelValues(label).Set(float64(q.NumQueued()))
	m.QueuedProcesses.WithLabelValues(label).Set(float64(q.NumProcessesQueued()))
	m.MaxRunning.WithLabelValues(label).Set(float64(q.MaxRunning()))
	m.ParallelDegree.WithLabelValues(label).Set(float64(q.MaxParallelDegree()))

	if cw, ok := q.(*dispatch.ChooseWorkerQueue); ok {
		fastRestarts := cw.FastChooseNextCount()
		runTimeNanos := cw.RunTime().Nanoseconds()

		m.cumulativeMu.Lock()
		fastDelta := fastRestarts - m.lastFastRestarts[kind]
		m.lastFastRestarts[kind] = fastRestarts
		runTimeDelta := runTimeNanos - m.lastRunTimeNanos[kind]
		m.lastRunTimeNanos[kind] = runTimeNanos
		m.cumulativeMu.Unlock()

		if fastDelta > 0 {
			m.FastRestarts.WithLabelValues(label).Add(float64(fastDelta))
		}
		if runTimeDelta > 0 {
			m.RunTime.WithLabelValues(label).Add(time.Duration(runTimeDelta).Seconds())
		}
	}
}

// RecordCompletion records that a pip finished running under kind, with err
// non-nil if Run returned an error.
func (m *Metrics) RecordCompletion(kind dispatch.DispatcherKind, dur time.Duration, err error) {
	label := kind.String()
	result := "success"
	if err != nil {
		result = "error"
		m.PipRunErrors.WithLabelValues(label).Inc()
	}
	m.PipsCompleted.WithLabelValues(label, result).Inc()
	m.PipDuration.WithLabelValues(label).Observe(dur.Seconds())
}
