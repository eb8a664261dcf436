package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchAttempts counts outbound HTTP attempts by host and outcome ("ok", "retry", "client_error", "unreachable").
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "energy_analyzer",
			Name:      "fetch_attempts_total",
			Help:      "Total outbound HTTP attempts",
		},
		[]string{"host", "outcome"},
	)

	// StepOutcomes counts pipeline step transitions.
	StepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "energy_analyzer",
			Name:      "step_outcomes_total",
			Help:      "Pipeline step outcomes by step and status",
		},
		[]string{"step", "status"},
	)

	// ToolCalls counts tool invocations from either orchestrator.
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "energy_analyzer",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and result",
		},
		[]string{"tool", "result"},
	)

	// AgentTurns observes how many model turns an agent run needed.
	AgentTurns = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "energy_analyzer",
			Name:      "agent_turns",
			Help:      "Model turns per agent run",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 15},
		},
	)

	// RunsActive is the number of background runs currently registered.
	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "energy_analyzer",
			Name:      "runs_active",
			Help:      "Background analysis runs in flight",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
