package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all tinychat metrics
const namespace = "tinychat"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// HealthCheckStatus tracks individual health check results
// Values: 0 = fail, 1 = pass
var HealthCheckStatus = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_status",
		Help:      "Individual health check status (0=fail, 1=pass)",
	},
	[]string{"check"},
)

// Auth metrics

// AuthFailures counts rejected bearer credentials by internal reason.
// Reasons never leave the process except through this counter and debug logs.
var AuthFailures = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Total number of rejected bearer credentials",
	},
	[]string{"reason"}, // missing_header|malformed_header|malformed_token|unknown_subject|bad_signature
)

// Gateway metrics

// GatewayPublish counts envelopes pushed to the realtime gateway.
var GatewayPublish = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_publish_total",
		Help:      "Total number of envelopes published to the gateway channel",
	},
	[]string{"type", "result"}, // result: success|error
)

// GatewayPublishDuration tracks bus publish latency.
var GatewayPublishDuration = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_publish_duration_seconds",
		Help:      "Gateway publish latency in seconds",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5},
	},
)

// GatewayConfirmAuth counts inbound messages handled by the responder.
var GatewayConfirmAuth = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_confirm_auth_total",
		Help:      "Total number of inbound gateway messages by outcome",
	},
	[]string{"result"}, // valid|invalid|malformed|ignored|unavailable
)

// Job metrics

// InvitesDeleted tracks expired invites removed by the cleanup job.
var InvitesDeleted = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invites_deleted_total",
		Help:      "Total number of expired invites deleted by the cleanup job",
	},
)

// Init initializes the metrics registry and sets version information
func Init(version, commit, buildDate string) {
	// Register default Go metrics (memory, goroutines, GC, etc.)
	Registry.MustRegister(collectors.NewGoCollector())

	// Register process metrics (CPU, memory, file descriptors)
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
