// Package metrics exposes Prometheus instrumentation for the gateway's
// hot path: query volume and latency, firewall rejections, and
// rate-limit blocks.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_gateway_queries_total",
			Help: "Total SQL statements executed, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lattice_gateway_query_duration_seconds",
			Help:    "SQL statement execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	firewallRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_gateway_firewall_rejections_total",
			Help: "Statements rejected by the SQL firewall, by category",
		},
		[]string{"category"},
	)

	rateLimitBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lattice_gateway_rate_limit_blocks_total",
			Help: "Requests blocked by the per-tenant rate limiter",
		},
	)

	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_gateway_webhook_deliveries_total",
			Help: "Webhook delivery attempts, by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordQuery records one executed statement.
func RecordQuery(command string, ok bool, durationSeconds float64) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	queriesTotal.WithLabelValues(command, outcome).Inc()
	queryDuration.WithLabelValues(command).Observe(durationSeconds)
}

// RecordFirewallRejection records a firewall rejection by category.
func RecordFirewallRejection(category string) {
	firewallRejections.WithLabelValues(category).Inc()
}

// RecordRateLimitBlock records a rate-limited request.
func RecordRateLimitBlock() {
	rateLimitBlocks.Inc()
}

// RecordWebhookDelivery records one delivery attempt.
func RecordWebhookDelivery(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	webhookDeliveries.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
