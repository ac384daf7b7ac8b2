package agent

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for transfer outcomes.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_agent_messages_total",
			Help: "Total number of control messages sent to agent workers.",
		},
		[]string{"kind"},
	)

	activeTransfers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_agent_active_transfers",
			Help: "Number of transfers currently registered with the engine.",
		},
	)

	transfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_agent_transfers_total",
			Help: "Total number of transfers resolved by agent workers.",
		},
		[]string{"outcome"},
	)

	wakeupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_agent_wakeups_total",
			Help: "Number of times a worker was woken through the notifier.",
		},
	)

	loopIterations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_agent_loop_iterations_total",
			Help: "Number of worker loop iterations.",
		},
	)
)

func init() {
	prometheus.MustRegister(messagesTotal)
	prometheus.MustRegister(activeTransfers)
	prometheus.MustRegister(transfersTotal)
	prometheus.MustRegister(wakeupsTotal)
	prometheus.MustRegister(loopIterations)

	// Pre-initialize label combinations so they appear in /metrics with
	// value 0 from startup, rather than only after first observation.
	for _, outcome := range []string{outcomeCompleted, outcomeFailed, outcomeCancelled} {
		transfersTotal.WithLabelValues(outcome)
	}
}
