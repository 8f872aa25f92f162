// Package metrics exposes counters and gauges for the runtime's own
// observability: SSDP traffic, GENA subscription churn, and SOAP action
// outcomes, all served as a standard Prometheus text endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "upnpda"

var (
	// SSDPMessages counts inbound and outbound SSDP datagrams by kind
	// (alive, byebye, search-request, search-response) and direction.
	SSDPMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ssdp",
		Name:      "messages_total",
		Help:      "SSDP datagrams processed, by kind and direction.",
	}, []string{"kind", "direction"})

	// ActiveSubscriptions tracks live GENA subscriptions, split between
	// the device host's server side and a control point's client side.
	ActiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gena",
		Name:      "active_subscriptions",
		Help:      "Currently live GENA subscriptions.",
	}, []string{"role"})

	// ActionInvocations counts SOAP action dispatches by service type,
	// action name, and outcome (ok, fault, failed).
	ActionInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "soap",
		Name:      "action_invocations_total",
		Help:      "SOAP action invocations, by service type, action, and outcome.",
	}, []string{"service_type", "action", "outcome"})

	// ControlPointDevices tracks devices the control point registry
	// currently considers online.
	ControlPointDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "control",
		Name:      "online_devices",
		Help:      "Root devices the control point registry currently considers online.",
	})
)

// Handler serves the accumulated metrics in the Prometheus text exposition
// format, for mounting at e.g. "/metrics".
func Handler() http.Handler {
	return promhttp.Handler()
}
