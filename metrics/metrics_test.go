package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	dispatch "github.com/go-foundations/dispatchqueue"
)

type noopOuter struct{}

func (noopOuter) DecrementRunningOrQueuedPips() {}
func (noopOuter) TriggerDispatcher()            {}

func TestReportQueue_WritesGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	q := dispatch.NewDispatcherQueue(noopOuter{}, 4, true)
	defer q.Dispose()

	m.ReportQueue(dispatch.KindCPU, q)

	var metric dto.Metric
	require.NoError(t, m.ParallelDegree.WithLabelValues("CPU").Write(&metric))
	require.Equal(t, float64(4), metric.GetGauge().GetValue())
}

func TestRecordCompletion_IncrementsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordCompletion(dispatch.KindIO, 0, nil)

	var success dto.Metric
	require.NoError(t, m.PipsCompleted.WithLabelValues("IO", "success").Write(&success))
	require.Equal(t, float64(1), success.GetCounter().GetValue())

	m.RecordCompletion(dispatch.KindIO, 0, errors.New("boom"))

	var errored dto.Metric
	require.NoError(t, m.PipRunErrors.WithLabelValues("IO").Write(&errored))
	require.Equal(t, float64(1), errored.GetCounter().GetValue())
}
