package metrics

import "github.com/prometheus/client_golang/prometheus"

// TurnMetrics exposes counters/histograms for conversation turn processing.
type TurnMetrics struct {
	turnsTotal      *prometheus.CounterVec
	conflictRetries prometheus.Counter
	escalations     prometheus.Counter
	historyFailures prometheus.Counter
	mergeDeduped    prometheus.Counter
	turnLatency     *prometheus.HistogramVec
}

func NewTurnMetrics(reg prometheus.Registerer) *TurnMetrics {
	m := &TurnMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadagent",
			Subsystem: "turns",
			Name:      "processed_total",
			Help:      "Total processed conversation turns",
		}, []string{"outcome", "stage"}),
		conflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadagent",
			Subsystem: "turns",
			Name:      "version_conflict_retries_total",
			Help:      "Snapshot store version conflicts that triggered a retry",
		}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadagent",
			Subsystem: "turns",
			Name:      "routing_escalations_total",
			Help:      "Turns that tripped the routing ceiling",
		}),
		historyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadagent",
			Subsystem: "turns",
			Name:      "history_fetch_failures_total",
			Help:      "Provider history fetches that failed and degraded to stored history",
		}),
		mergeDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadagent",
			Subsystem: "turns",
			Name:      "merge_deduplicated_total",
			Help:      "Messages dropped as duplicates during history merge",
		}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadagent",
			Subsystem: "turns",
			Name:      "latency_seconds",
			Help:      "Latency of end-to-end turn processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.conflictRetries, m.escalations, m.historyFailures, m.mergeDeduped, m.turnLatency)
	return m
}

func (m *TurnMetrics) ObserveTurn(outcome, stage string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome, stage).Inc()
	m.turnLatency.WithLabelValues(stage).Observe(seconds)
}

func (m *TurnMetrics) ObserveConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

func (m *TurnMetrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

func (m *TurnMetrics) ObserveHistoryFetchFailure() {
	if m == nil {
		return
	}
	m.historyFailures.Inc()
}

func (m *TurnMetrics) ObserveMergeDeduplicated(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.mergeDeduped.Add(float64(count))
}
