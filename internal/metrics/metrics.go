// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts webhook admissions by outcome
	// (accepted, duplicate, rate_limited, rejected).
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvintel_webhook_events_total",
			Help: "Webhook admissions by outcome",
		},
		[]string{"outcome"},
	)

	// Evaluations counts rules evaluations by source (webhook, scheduler).
	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvintel_evaluations_total",
			Help: "Rules evaluations by source",
		},
		[]string{"source"},
	)

	// AICalls counts AI explanation attempts by outcome
	// (generated, lock_busy).
	AICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tvintel_ai_calls_total",
			Help: "AI explanation attempts by outcome",
		},
		[]string{"outcome"},
	)

	// WSClients tracks connected price-stream websocket clients.
	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tvintel_ws_clients",
			Help: "Connected /ws/prices clients",
		},
	)
)
