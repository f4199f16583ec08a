// Package metrics provides Prometheus instrumentation for the assistant.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts state machine runs by kind (turn|resume) and outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_runs_total",
			Help: "Total dialog state machine runs",
		},
		[]string{"kind", "outcome"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_run_duration_seconds",
			Help:    "Dialog state machine run duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"kind"},
	)

	NodeStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_node_steps_total",
			Help: "Total node executions",
		},
		[]string{"node"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_tool_calls_total",
			Help: "Total tool calls by agent, tool and status",
		},
		[]string{"agent", "tool", "status"},
	)

	InterruptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_interrupts_total",
			Help: "Total runs suspended for supervisor approval",
		},
		[]string{"severity"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)
)
