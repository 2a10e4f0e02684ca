package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters shared by the run executor, dispatcher, and worker. Scheduled
// runs surface failures nowhere else, so these are the observability
// contract for autonomous execution.
var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listening_runs_total",
		Help: "Run executions by scope and outcome.",
	}, []string{"scope", "outcome"})

	RunsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listening_runs_skipped_total",
		Help: "Runs skipped because the group already had a run in flight.",
	})

	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listening_fetch_failures_total",
		Help: "Platform fetch failures, isolated per (platform, keyword) pair.",
	}, []string{"platform"})

	PostsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listening_posts_persisted_total",
		Help: "Newly persisted posts.",
	})

	PostsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listening_posts_duplicate_total",
		Help: "Posts rejected by the store as duplicates.",
	})

	DispatchedRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listening_dispatched_runs_total",
		Help: "Run requests published by the dispatcher, per cadence bucket.",
	}, []string{"cadence"})
)
