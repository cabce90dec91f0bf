// Package metrics exposes Prometheus collectors for tool calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ToolCalls counts dispatched tool calls by tool and outcome
	// (success|invalid|unknown_tool|missing_arguments|service_error|error).
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeformation_mcp_tool_calls_total",
			Help: "Total number of dispatched tool calls",
		},
		[]string{"tool", "result"},
	)

	// ServiceLatency measures Lake Formation call latency by operation and result.
	ServiceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lakeformation_mcp_service_latency_seconds",
			Help:    "Lake Formation grant/revoke call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)
)

var (
	// HTTPRequests counts HTTP requests by method, route pattern and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeformation_mcp_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration measures HTTP request latency by method and route pattern.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lakeformation_mcp_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
