package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveRun("chain-audit", 250*time.Millisecond, nil)
	m.ObserveRun("chain-audit", time.Second, errors.New("db down"))
	m.ObserveRun("", time.Millisecond, nil)

	expected := `
# HELP cron_job_runs_total Cron job runs by result (ok or error).
# TYPE cron_job_runs_total counter
cron_job_runs_total{job="chain-audit",result="error"} 1
cron_job_runs_total{job="chain-audit",result="ok"} 1
cron_job_runs_total{job="unknown",result="ok"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cron_job_runs_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("chain-audit")), float64(0))
}

func TestNilCronJobMetricsIsSafe(t *testing.T) {
	var m *CronJobMetrics
	assert.NotPanics(t, func() { m.ObserveRun("x", time.Second, nil) })
	assert.Nil(t, NewCronJobMetrics(nil))
}
