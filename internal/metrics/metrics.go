// Package metrics defines the bridge's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttributesDecoded counts attributes turned into canonical state, by revision and field key.
	AttributesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amina_attributes_decoded_total",
		Help: "Attributes decoded into canonical charger state.",
	}, []string{"revision", "field"})

	// AttributesIgnored counts attributes skipped during decode, by revision and reason.
	AttributesIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amina_attributes_ignored_total",
		Help: "Attributes skipped during decode because no field matched or the value was malformed.",
	}, []string{"revision", "reason"})

	// OperationsDispatched counts wire operations handed to the host stack, by kind and outcome.
	OperationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amina_operations_dispatched_total",
		Help: "Wire operations dispatched to the host network stack.",
	}, []string{"kind", "result"})

	// ValidationFailures counts rejected set requests, by field key.
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amina_validation_failures_total",
		Help: "Set requests rejected before reaching the device.",
	}, []string{"field"})

	// DispatchDuration observes how long the host stack takes to acknowledge an operation.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amina_dispatch_duration_seconds",
		Help:    "Time from dispatch until the host stack acknowledged the operation.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"kind"})

	// KnownDevices tracks identified chargers, by revision.
	KnownDevices = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "amina_devices",
		Help: "Identified chargers bound to a schema revision.",
	}, []string{"revision"})

	// HostStackConnected is 1 while the host stack websocket is up.
	HostStackConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amina_host_stack_connected",
		Help: "Whether the host network stack connection is established.",
	})

	// MQTTPublished counts MQTT publishes, by topic kind.
	MQTTPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amina_mqtt_published_total",
		Help: "Messages published to the MQTT broker.",
	}, []string{"kind"})

	// WebSocketClients tracks connected event stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amina_ws_clients",
		Help: "Connected websocket event stream clients.",
	})
)
