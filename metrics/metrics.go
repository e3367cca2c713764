// Package metrics exposes the consensus core's Prometheus instrumentation:
// round and view-change counters and a commit-latency histogram.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tolelom/sumeragi/events"
)

var (
	roundsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sumeragi",
		Name:      "rounds_started_total",
		Help:      "Number of consensus rounds started, including restarts after a view change.",
	})

	viewChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sumeragi",
		Name:      "view_changes_total",
		Help:      "Number of view changes applied, by triggering reason.",
	}, []string{"reason"})

	blocksCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sumeragi",
		Name:      "blocks_committed_total",
		Help:      "Number of blocks that reached signature quorum and were committed.",
	})

	transactionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sumeragi",
		Name:      "transactions_rejected_total",
		Help:      "Number of transactions dropped during stateful validation.",
	})

	commitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sumeragi",
		Name:      "commit_latency_seconds",
		Help:      "Time from a committed block reaching the pipeline to both sinks finishing.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(roundsStarted, viewChanges, blocksCommitted, transactionsRejected, commitLatency)
}

// ObserveCommitLatency records how long a block's fan-out to its sinks took.
func ObserveCommitLatency(d time.Duration) {
	commitLatency.Observe(d.Seconds())
}

// Subscribe wires the counters to an Emitter so metrics stay accurate
// without the engine itself importing this package.
func Subscribe(e *events.Emitter) {
	e.Subscribe(events.EventCommitted, func(events.Event) { blocksCommitted.Inc() })
	e.Subscribe(events.EventRejected, func(events.Event) { transactionsRejected.Inc() })
	e.Subscribe(events.EventViewChanged, func(ev events.Event) {
		reason, _ := ev.Data["reason"].(string)
		if reason == "" {
			reason = "unknown"
		}
		viewChanges.WithLabelValues(reason).Inc()
		roundsStarted.Inc()
	})
	e.Subscribe(events.EventCreated, func(events.Event) { roundsStarted.Inc() })
}
