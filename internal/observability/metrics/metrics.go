package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the booking and payment flows.
type BookingMetrics struct {
	bookingTotal   *prometheus.CounterVec
	callbackTotal  *prometheus.CounterVec
	expiredTotal   prometheus.Counter
	stkPushLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediconnect",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Total booking requests by outcome",
		}, []string{"outcome"}),
		callbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediconnect",
			Subsystem: "payment",
			Name:      "callback_total",
			Help:      "Total M-Pesa callbacks by outcome",
		}, []string{"outcome"}),
		expiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediconnect",
			Subsystem: "booking",
			Name:      "expired_reservations_total",
			Help:      "Total reservations expired by the sweeper",
		}),
		stkPushLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediconnect",
			Subsystem: "payment",
			Name:      "stk_push_latency_seconds",
			Help:      "Latency of STK push requests to the gateway",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingTotal, m.callbackTotal, m.expiredTotal, m.stkPushLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveCallback(outcome string) {
	if m == nil {
		return
	}
	m.callbackTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.expiredTotal.Add(float64(count))
}

func (m *BookingMetrics) ObserveSTKPushLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.stkPushLatency.WithLabelValues(status).Observe(seconds)
}
