// Package metrics holds the Prometheus collectors for billing and
// entitlement activity. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "endurancy"

type Metrics struct {
	reconciliations     *prometheus.CounterVec
	moduleChanges       *prometheus.CounterVec
	confirmations       *prometheus.CounterVec
	paymentEmails       *prometheus.CounterVec
	ordersExpired       prometheus.Counter
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlements",
			Name:      "reconciliations_total",
			Help:      "Reconciliation runs by result",
		}, []string{"result"}),
		moduleChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlements",
			Name:      "module_changes_total",
			Help:      "Organization module writes by kind",
		}, []string{"kind"}),
		confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "confirmations_total",
			Help:      "Payment confirmations by result",
		}, []string{"result"}),
		paymentEmails: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "emails_total",
			Help:      "Payment emails by result",
		}, []string{"result"}),
		ordersExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "orders_expired_total",
			Help:      "Pending orders moved to expired",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Reconciled(result string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(result).Inc()
}

func (m *Metrics) ModuleChanged(kind string) {
	if m == nil {
		return
	}
	m.moduleChanges.WithLabelValues(kind).Inc()
}

func (m *Metrics) Confirmation(result string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(result).Inc()
}

func (m *Metrics) PaymentEmail(result string) {
	if m == nil {
		return
	}
	m.paymentEmails.WithLabelValues(result).Inc()
}

func (m *Metrics) OrdersExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ordersExpired.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
