package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestClientMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)
	m.ObserveRequest("LichHen/get-all-lich-hen", "200", 0.12)
	m.ObserveRequest("LichHen/get-all-lich-hen", "200", 0.08)
	m.ObserveRequest("LichHen/get-all-lich-hen", "transport_error", 0.5)

	assert.Equal(t, 2.0, counterValue(t, reg, "medcare_api_requests_total",
		map[string]string{"endpoint": "LichHen/get-all-lich-hen", "status": "200"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "medcare_api_requests_total",
		map[string]string{"status": "transport_error"}))
}

func TestCheckoutMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)
	m.ObservePoll("appointment", "pending")
	m.ObservePoll("appointment", "pending")
	m.ObserveSession("invoice", "timeout")
	m.ObserveCompensation("invoice", "failed")

	assert.Equal(t, 2.0, counterValue(t, reg, "medcare_payment_polls_total",
		map[string]string{"kind": "appointment", "outcome": "pending"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "medcare_payment_sessions_total",
		map[string]string{"kind": "invoice", "result": "timeout"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "medcare_payment_compensations_total",
		map[string]string{"kind": "invoice", "result": "failed"}))
}

func TestCartMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCartMetrics(reg)
	m.ObserveRejection("exceeds_stock")
	assert.Equal(t, 1.0, counterValue(t, reg, "medcare_cart_rejections_total",
		map[string]string{"reason": "exceeds_stock"}))
}

func TestMetricsNilSafe(t *testing.T) {
	var c *ClientMetrics
	c.ObserveRequest("x", "200", 0.1)

	var co *CheckoutMetrics
	co.ObservePoll("appointment", "pending")
	co.ObserveSession("appointment", "succeeded")
	co.ObserveCompensation("appointment", "ok")

	var cart *CartMetrics
	cart.ObserveRejection("exceeds_stock")
}
