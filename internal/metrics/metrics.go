// Package metrics exposes the observability surface named in
// SPEC_FULL.md §4.11: per-protocol device counts, decode-error counts,
// and process uptime, mirrored to Prometheus alongside the MQTT retained
// topics of spec.md §6 — the same events, two sinks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProtocolDeviceCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "e2m_protocol_device_count",
		Help: "Number of configured devices per protocol worker.",
	}, []string{"protocol"})

	DecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "e2m_decode_errors_total",
		Help: "Total decode failures, by protocol.",
	}, []string{"protocol"})

	UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "e2m_uptime_seconds",
		Help: "Seconds since process start.",
	})
)
