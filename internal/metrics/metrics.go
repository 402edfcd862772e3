package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRegistry holds all Prometheus metrics for the membership service
type MetricsRegistry struct {
	Registry *prometheus.Registry

	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Record store Metrics
	StoreRequestsTotal   *prometheus.CounterVec
	StoreRequestDuration *prometheus.HistogramVec

	// Issuance Metrics
	MembershipsIssuedTotal prometheus.Counter
	ApprovalsRejectedTotal *prometheus.CounterVec
	ValidationsTotal       *prometheus.CounterVec

	// Gateway Metrics
	SessionsActive       prometheus.Gauge
	GatewayMessagesTotal *prometheus.CounterVec
	GatewaySendFailures  prometheus.Counter
}

// NewMetricsRegistry initializes a MetricsRegistry with all metrics registered
// on a private prometheus.Registry, so tests can build as many as they like.
func NewMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()

	m := &MetricsRegistry{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mis_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mis_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mis_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"endpoint"},
		),

		StoreRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mis_store_requests_total",
				Help: "Total record store calls by collection, operation and outcome",
			},
			[]string{"collection", "operation", "outcome"},
		),
		StoreRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mis_store_request_duration_seconds",
				Help:    "Record store call latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"collection", "operation"},
		),

		MembershipsIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mis_memberships_issued_total",
				Help: "Total memberships minted by approval",
			},
		),
		ApprovalsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mis_approvals_rejected_total",
				Help: "Approval attempts rejected, by reason",
			},
			[]string{"reason"},
		),
		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mis_credential_validations_total",
				Help: "Membership key validations by result",
			},
			[]string{"result"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mis_gateway_sessions_active",
				Help: "Current number of registered real-time sessions",
			},
		),
		GatewayMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mis_gateway_messages_total",
				Help: "Inbound real-time envelopes by type",
			},
			[]string{"type"},
		),
		GatewaySendFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mis_gateway_send_failures_total",
				Help: "Outbound deliveries that failed and tore down their session",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.StoreRequestsTotal,
		m.StoreRequestDuration,
		m.MembershipsIssuedTotal,
		m.ApprovalsRejectedTotal,
		m.ValidationsTotal,
		m.SessionsActive,
		m.GatewayMessagesTotal,
		m.GatewaySendFailures,
	)

	return m
}
