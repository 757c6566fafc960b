/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry defines Prometheus collectors and HTTP instrumentation.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HubConnections tracks live WebSocket connections by role.
	HubConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cartwall_hub_connections",
		Help: "Live WebSocket connections registered with the hub.",
	}, []string{"role"})

	// HubMessagesTotal counts inbound messages routed by the hub.
	HubMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartwall_hub_messages_total",
		Help: "Inbound hub messages by action.",
	}, []string{"action"})

	// HubDroppedSendsTotal counts per-connection sends dropped because the
	// client's outbound queue was full or the connection was closing.
	HubDroppedSendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartwall_hub_dropped_sends_total",
		Help: "Broadcast sends dropped due to slow or closed connections.",
	})

	// CatalogRescansTotal counts catalog snapshot recomputations by trigger.
	CatalogRescansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartwall_catalog_rescans_total",
		Help: "Catalog snapshot recomputations by trigger (watch, poll).",
	}, []string{"trigger"})

	// CatalogChangesTotal counts emitted catalog-changed events.
	CatalogChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartwall_catalog_changes_total",
		Help: "Catalog change events emitted to clients.",
	})

	// SettingsWritesTotal counts settings persistence attempts by outcome.
	SettingsWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartwall_settings_writes_total",
		Help: "Settings file writes by outcome (ok, error).",
	}, []string{"outcome"})

	// APIRequestsTotal counts HTTP requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartwall_api_requests_total",
		Help: "HTTP requests by method, endpoint, and status code.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cartwall_api_request_duration_seconds",
		Help:    "HTTP request duration by method, endpoint, and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
