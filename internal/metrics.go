package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"time"
)

// Metrics collects payment counters on its own registry. A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	checkouts       *prometheus.CounterVec
	callbacks       *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_requests_total",
			Help: "Payment requests built, by result",
		}, []string{"result"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Gateway callbacks received, by verification result",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_transitions_total",
			Help: "Transaction state changes, by new status and source",
		}, []string{"status", "source"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Server-to-server gateway calls, by command and result",
		}, []string{"command", "result"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Duration of server-to-server gateway calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"command"}),
	}
	registry.MustRegister(m.checkouts, m.callbacks, m.transitions, m.gatewayCalls, m.gatewayDuration)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) Checkout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

func (m *Metrics) Callback(result string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(result).Inc()
}

func (m *Metrics) Transition(status, source string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status, source).Inc()
}

func (m *Metrics) GatewayCall(command, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(command, result).Inc()
	m.gatewayDuration.WithLabelValues(command).Observe(duration.Seconds())
}
