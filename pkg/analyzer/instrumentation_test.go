package analyzer

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewMetricsRegistersAllSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.PartitionsProcessed.Inc()
	m.RecordsParsed.Add(5)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	require.EqualValues(t, 1, counterValue(t, m.PartitionsProcessed))
	require.EqualValues(t, 5, counterValue(t, m.RecordsParsed))
}

func TestNoopMetricsIsUsableWithoutACaller(t *testing.T) {
	m := noopMetrics()
	require.NotPanics(t, func() {
		m.RecordsIgnored.Inc()
		m.CheckpointHits.Inc()
		m.PartitionDuration.Observe(0.01)
	})
}
