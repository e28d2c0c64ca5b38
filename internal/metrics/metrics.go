// Package metrics holds the Prometheus collectors shared by the turn
// orchestrator, the tool executor and the video pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wayfarer"

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns by mode and outcome (ok, stream_error, decision_error, timeout).",
		},
		[]string{"mode", "outcome"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and status (ok, error, invalid, unknown, panic).",
		},
		[]string{"tool", "status"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	VideoPipelineTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_pipeline_total",
			Help:      "Video enrichment runs by path (tool, smart, single) and outcome (videos, empty).",
		},
		[]string{"path", "outcome"},
	)

	ActiveTurns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_turns",
			Help:      "Turns currently holding a gateway slot.",
		},
	)
)

// ObserveTool records one tool execution.
func ObserveTool(tool, status string, started time.Time) {
	ToolCallsTotal.WithLabelValues(tool, status).Inc()
	ToolDuration.WithLabelValues(tool).Observe(time.Since(started).Seconds())
}

// ObserveVideo records one video pipeline run.
func ObserveVideo(path string, found int) {
	outcome := "videos"
	if found == 0 {
		outcome = "empty"
	}
	VideoPipelineTotal.WithLabelValues(path, outcome).Inc()
}
