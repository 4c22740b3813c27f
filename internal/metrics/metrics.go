// Package metrics exposes the small set of Prometheus counters the core
// maintains for its own operations (transaction orchestration, error
// classification). The core never starts an HTTP listener itself; a
// deployment that wants to scrape these registers Registry with its own
// promhttp handler.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the collector registry every counter in this package is
// registered against. A deployment wires this into its own /metrics
// endpoint via promhttp.HandlerFor(metrics.Registry, ...).
var Registry = prometheus.NewRegistry()

var (
	// InstructionsBuilt counts on-chain instructions assembled for
	// submission, labeled by the caller-level operation that built them.
	InstructionsBuilt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perpcore_instructions_built_total",
		Help: "Instructions built for submission, by operation.",
	}, []string{"operation"})

	// TransactionsConfirmed counts transactions that reached a terminal
	// on-chain outcome, labeled by whether they confirmed without error.
	TransactionsConfirmed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perpcore_transactions_confirmed_total",
		Help: "Transactions that reached a terminal confirmation outcome.",
	}, []string{"outcome"})

	// ErrorsClassified counts failures after classify has assigned them a
	// stable Kind, the single place the core's error taxonomy is observed.
	ErrorsClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "perpcore_errors_classified_total",
		Help: "Classified errors, by taxonomy kind.",
	}, []string{"kind"})
)

func init() {
	Registry.MustRegister(InstructionsBuilt, TransactionsConfirmed, ErrorsClassified)
}
