package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks command outcomes, optimistic-concurrency retries and chain failures.
type LedgerMetrics struct {
	commands          *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	conflictRetries   *prometheus.CounterVec
	integrityFailures *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_commands_total",
		Help: "Ledger commands handled, by command and outcome code.",
	}, []string{"command", "outcome"})
	commandDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_command_duration_seconds",
		Help:    "Wall time of ledger commands including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})
	conflictRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_conflict_retries_total",
		Help: "Appends retried after losing a sequence race.",
	}, []string{"command"})
	integrityFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_integrity_failures_total",
		Help: "Records whose hash chain failed verification.",
	}, []string{"source"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_projection_cache_lookups_total",
		Help: "Projection cache lookups by result.",
	}, []string{"result"})
	reg.MustRegister(commands, commandDuration, conflictRetries, integrityFailures, cacheLookups)
	return &LedgerMetrics{
		commands:          commands,
		commandDuration:   commandDuration,
		conflictRetries:   conflictRetries,
		integrityFailures: integrityFailures,
		cacheLookups:      cacheLookups,
	}
}

// ObserveCommand records one finished command. outcome is "ok" or an error code.
func (m *LedgerMetrics) ObserveCommand(command, outcome string, duration time.Duration) {
	if m == nil || m.commands == nil {
		return
	}
	m.commands.WithLabelValues(normalizeLabel(command), normalizeLabel(outcome)).Inc()
	m.commandDuration.WithLabelValues(normalizeLabel(command)).Observe(duration.Seconds())
}

func (m *LedgerMetrics) IncConflictRetry(command string) {
	if m == nil || m.conflictRetries == nil {
		return
	}
	m.conflictRetries.WithLabelValues(normalizeLabel(command)).Inc()
}

// IncIntegrityFailure counts a failed verification; source is "query", "command" or "audit".
func (m *LedgerMetrics) IncIntegrityFailure(source string) {
	if m == nil || m.integrityFailures == nil {
		return
	}
	m.integrityFailures.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *LedgerMetrics) IncCacheLookup(hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
