package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Polls.WithLabelValues(PollMerged).Inc()
	m.Polls.WithLabelValues(PollMerged).Inc()
	m.Actions.WithLabelValues("guess", "ok").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			got[f.GetName()] += metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, 2.0, got["wordduel_polls_total"])
	require.Equal(t, 1.0, got["wordduel_actions_total"])

	require.Panics(t, func() { New(reg) }, "duplicate registration")
}
