package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, fam := range families {
		byName[fam.GetName()] = fam
	}
	return byName
}

func TestTurnMetricsRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTurnMetrics(reg)

	m.ObserveTurn("committed", "cold", 0.25)
	m.ObserveTurn("committed", "cold", 0.5)
	m.ObserveConflictRetry()
	m.ObserveEscalation()
	m.ObserveHistoryFetchFailure()
	m.ObserveMergeDeduplicated(3)
	m.ObserveMergeDeduplicated(0) // no-op

	families := gather(t, reg)

	turns := families["leadagent_turns_processed_total"]
	require.NotNil(t, turns)
	require.Len(t, turns.GetMetric(), 1)
	assert.Equal(t, float64(2), turns.GetMetric()[0].GetCounter().GetValue())

	assert.Equal(t, float64(1),
		families["leadagent_turns_version_conflict_retries_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, float64(1),
		families["leadagent_turns_routing_escalations_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, float64(1),
		families["leadagent_turns_history_fetch_failures_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, float64(3),
		families["leadagent_turns_merge_deduplicated_total"].GetMetric()[0].GetCounter().GetValue())

	latency := families["leadagent_turns_latency_seconds"]
	require.NotNil(t, latency)
	assert.Equal(t, uint64(2), latency.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestTurnMetricsNilReceiverIsSafe(t *testing.T) {
	var m *TurnMetrics

	m.ObserveTurn("committed", "cold", 0.1)
	m.ObserveConflictRetry()
	m.ObserveEscalation()
	m.ObserveHistoryFetchFailure()
	m.ObserveMergeDeduplicated(2)
}
