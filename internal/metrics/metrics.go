// Package metrics defines the client's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Polls        *prometheus.CounterVec
	PollDuration prometheus.Histogram
	Merges       prometheus.Counter
	Actions      *prometheus.CounterVec
	Rollbacks    *prometheus.CounterVec
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordduel_polls_total",
				Help: "Reconciliation cycles by result",
			},
			[]string{"result"},
		),
		PollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wordduel_poll_duration_seconds",
				Help:    "Time spent fetching and merging one ledger snapshot",
				Buckets: prometheus.DefBuckets,
			},
		),
		Merges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wordduel_merges_total",
				Help: "Snapshots that changed the local game",
			},
		),
		Actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordduel_actions_total",
				Help: "Protocol actions by outcome",
			},
			[]string{"action", "result"},
		),
		Rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordduel_rollbacks_total",
				Help: "Optimistic local changes undone after a failed transaction",
			},
			[]string{"action"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Polls, m.PollDuration, m.Merges, m.Actions, m.Rollbacks)
	}
	return m
}

// Poll results.
const (
	PollMerged    = "merged"
	PollUnchanged = "unchanged"
	PollSkipped   = "skipped"
	PollError     = "error"
	PollExpired   = "expired"
)
