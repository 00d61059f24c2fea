package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for tracking sessions
var (
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracking_sessions_active",
			Help: "Number of tracking sessions currently running",
		},
	)

	StatusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_status_transitions_total",
			Help: "Accepted order status transitions by target status",
		},
		[]string{"to"},
	)

	PushMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_push_messages_total",
			Help: "Inbound push channel frames by decode result",
		},
		[]string{"result"},
	)

	PushReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_push_reconnects_total",
			Help: "Push channel reconnect attempts",
		},
	)

	RouteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_route_requests_total",
			Help: "Route lookups by where they were served from",
		},
		[]string{"source"},
	)

	ArrivalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_arrivals_total",
			Help: "Arrival events raised by the position animator",
		},
	)

	OTPIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_otp_issued_total",
			Help: "Handover code issuance requests by result",
		},
		[]string{"result"},
	)

	OTPVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_otp_verifications_total",
			Help: "Handover code verifications by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry. Safe to call twice.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SessionsActive)
		prometheus.MustRegister(StatusTransitionsTotal)
		prometheus.MustRegister(PushMessagesTotal)
		prometheus.MustRegister(PushReconnectsTotal)
		prometheus.MustRegister(RouteRequestsTotal)
		prometheus.MustRegister(ArrivalsTotal)
		prometheus.MustRegister(OTPIssuedTotal)
		prometheus.MustRegister(OTPVerificationsTotal)
	})
}
