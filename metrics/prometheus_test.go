package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-org-registry/logger"
	"github.com/saiset-co/sai-org-registry/types"
)

func newTestMetrics(t *testing.T) *PrometheusMetrics {
	t.Helper()
	p, err := NewPrometheusMetrics(logger.NewNop(), &types.MetricsConfig{
		Enabled: true,
		Config:  map[string]interface{}{"enable_go_metrics": false},
	})
	require.NoError(t, err)
	return p
}

func TestCounterSharesVecAcrossLabelValues(t *testing.T) {
	p := newTestMetrics(t)

	hit := p.Counter("cache_operations_total", map[string]string{"operation": "get", "result": "hit"})
	miss := p.Counter("cache_operations_total", map[string]string{"result": "miss", "operation": "get"})

	hit.Inc()
	hit.Inc()
	miss.Add(3)

	assert.Equal(t, 2.0, hit.Get())
	assert.Equal(t, 3.0, miss.Get())
	assert.Equal(t, 1, p.GetStats().CounterMetrics)

	families, err := p.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "sai_org_registry_cache_operations_total", families[0].GetName())
}

func TestGaugeAndHistogram(t *testing.T) {
	p := newTestMetrics(t)

	g := p.Gauge("cron_active_jobs", nil)
	g.Set(4)
	g.Dec()
	assert.Equal(t, 3.0, g.Get())

	h := p.Histogram("cache_operation_duration_seconds", []float64{0.001, 0.1}, map[string]string{"operation": "set"})
	h.Observe(0.01)
	h.Observe(0.5)
	assert.Equal(t, uint64(2), h.GetCount())
}

func TestDisabledManagerHandsOutNoops(t *testing.T) {
	m := NewNop(logger.NewNop())
	require.NoError(t, m.Start())

	c := m.Counter("anything_total", map[string]string{"a": "b"})
	c.Inc()
	assert.Equal(t, 0.0, c.Get())
	assert.Equal(t, 0, m.GetStats().TotalMetrics)
	require.NoError(t, m.Stop())
}
