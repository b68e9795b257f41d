// Package observability provides Prometheus metrics for discovery, tool
// servers, LLM providers and outbound HTTP calls.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 180s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 180}

// HandshakeBuckets covers MCP initialize round trips through a broker.
var HandshakeBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	// DiscoveryAnnouncementsTotal counts presence messages by outcome:
	// accepted, duplicate, ignored (discovery finished), withdrawn, malformed.
	DiscoveryAnnouncementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdvagent_discovery_announcements_total",
			Help: "Tool server announcements",
		},
		[]string{"outcome"},
	)

	// DiscoveryInitializationsTotal counts MCP initialize handshakes.
	DiscoveryInitializationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdvagent_discovery_initializations_total",
			Help: "Tool server initializations",
		},
		[]string{"status"},
	)

	// DiscoveryInitializationDuration records handshake latency.
	DiscoveryInitializationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sdvagent_discovery_initialization_seconds",
			Help:    "Tool server initialization latency",
			Buckets: HandshakeBuckets,
		},
	)

	// DiscoveryRunsTotal counts discovery runs by result: completed,
	// timeout, init_failed, connect_error.
	DiscoveryRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdvagent_discovery_runs_total",
			Help: "Discovery runs",
		},
		[]string{"result"},
	)

	// ToolServerSessionsActive tracks live client sessions per tool server.
	ToolServerSessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sdvagent_toolserver_sessions_active",
			Help: "Active MCP client sessions",
		},
		[]string{"server"},
	)

	// ProviderRequestsTotal counts requests sent to backend LLM providers.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdvagent_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records backend provider latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdvagent_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdvagent_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// ToolExecutionsTotal counts tool executions by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdvagent_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// HTTPClientRequestsTotal counts outbound HTTP requests by host and
	// status class.
	HTTPClientRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdvagent_http_client_requests_total",
			Help: "Outbound HTTP requests",
		},
		[]string{"host", "status"},
	)

	// HTTPClientDuration records outbound HTTP latency by host.
	HTTPClientDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdvagent_http_client_duration_seconds",
			Help:    "Outbound HTTP latency",
			Buckets: LLMBuckets,
		},
		[]string{"host"},
	)
)

func init() {
	prometheus.MustRegister(
		DiscoveryAnnouncementsTotal,
		DiscoveryInitializationsTotal,
		DiscoveryInitializationDuration,
		DiscoveryRunsTotal,
		ToolServerSessionsActive,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ToolExecutionsTotal,
		HTTPClientRequestsTotal,
		HTTPClientDuration,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
