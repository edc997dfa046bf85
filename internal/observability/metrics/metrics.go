package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics exposes counters/histograms for the backend API client.
type ClientMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medcare",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total backend API requests by endpoint and outcome",
		}, []string{"endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medcare",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of backend API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

// ObserveRequest records one request. status is the HTTP status code as text,
// or "transport_error" when no response arrived.
func (m *ClientMetrics) ObserveRequest(endpoint, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(endpoint, status).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(seconds)
}

// CheckoutMetrics tracks payment polling and compensation.
type CheckoutMetrics struct {
	pollsTotal         *prometheus.CounterVec
	sessionsTotal      *prometheus.CounterVec
	compensationsTotal *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	m := &CheckoutMetrics{
		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medcare",
			Subsystem: "payment",
			Name:      "polls_total",
			Help:      "Payment status checks by target kind and observed outcome",
		}, []string{"kind", "outcome"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medcare",
			Subsystem: "payment",
			Name:      "sessions_total",
			Help:      "Finished payment sessions by target kind and result",
		}, []string{"kind", "result"}),
		compensationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medcare",
			Subsystem: "payment",
			Name:      "compensations_total",
			Help:      "Compensating deletes by target kind and result",
		}, []string{"kind", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.pollsTotal, m.sessionsTotal, m.compensationsTotal)
	return m
}

func (m *CheckoutMetrics) ObservePoll(kind, outcome string) {
	if m == nil {
		return
	}
	m.pollsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *CheckoutMetrics) ObserveSession(kind, result string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(kind, result).Inc()
}

func (m *CheckoutMetrics) ObserveCompensation(kind, result string) {
	if m == nil {
		return
	}
	m.compensationsTotal.WithLabelValues(kind, result).Inc()
}

// CartMetrics counts rejected cart mutations.
type CartMetrics struct {
	rejectionsTotal *prometheus.CounterVec
}

func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	m := &CartMetrics{
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medcare",
			Subsystem: "cart",
			Name:      "rejections_total",
			Help:      "Cart mutations rejected by reason",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.rejectionsTotal)
	return m
}

func (m *CartMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

// HTTPMetrics counts requests served by the sandbox backend.
type HTTPMetrics struct {
	requestsTotal *prometheus.CounterVec
	paymentsTotal *prometheus.CounterVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medcare",
			Subsystem: "sandbox",
			Name:      "http_requests_total",
			Help:      "Sandbox HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "status"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medcare",
			Subsystem: "sandbox",
			Name:      "payments_total",
			Help:      "Fake payment page actions by target kind and action",
		}, []string{"kind", "action"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.paymentsTotal)
	return m
}

func (m *HTTPMetrics) ObserveRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *HTTPMetrics) ObservePayment(kind, action string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(kind, action).Inc()
}
