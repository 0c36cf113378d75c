package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetricsCounters(t *testing.T) {
	m := NewLedgerMetrics(prometheus.NewRegistry())

	m.ObserveCommand("add_payment", "ok", 10*time.Millisecond)
	m.ObserveCommand("add_payment", "CONFLICT", 5*time.Millisecond)
	m.IncConflictRetry("add_payment")
	m.IncConflictRetry("add_payment")
	m.IncIntegrityFailure("audit")
	m.IncCacheLookup(true)
	m.IncCacheLookup(false)
	m.IncCacheLookup(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.conflictRetries.WithLabelValues("add_payment")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.integrityFailures.WithLabelValues("audit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.commands.WithLabelValues("add_payment", "CONFLICT")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.commandDuration))
}

func TestCommandDurationIsExposedPerCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.ObserveCommand("confirm", "ok", 20*time.Millisecond)
	m.ObserveCommand("confirm", "INVALID_TRANSITION", 40*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var histogram *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "ledger_command_duration_seconds" {
			histogram = mf
		}
	}
	require.NotNil(t, histogram)
	assert.Equal(t, dto.MetricType_HISTOGRAM, histogram.GetType())
	require.Len(t, histogram.GetMetric(), 1)

	h := histogram.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 0.06, h.GetSampleSum(), 1e-9)
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	assert.NotPanics(t, func() {
		m.ObserveCommand("create", "ok", time.Second)
		m.IncConflictRetry("create")
		m.IncIntegrityFailure("query")
		m.IncCacheLookup(true)
		NewLedgerMetrics(nil).IncCacheLookup(false)
	})
}
