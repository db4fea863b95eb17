package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics owns a private registry so tests can build several servers in
// one process. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	debtsCreated     *prometheus.CounterVec
	paymentsApplied  *prometheus.CounterVec
	paymentAmount    *prometheus.CounterVec
	paymentsReversed prometheus.Counter
	creditRejections *prometheus.CounterVec
	driftCorrections prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nurbuild",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nurbuild",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		debtsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nurbuild",
			Name:      "debts_created_total",
			Help:      "Debts created, by origin.",
		}, []string{"origin"}),
		paymentsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nurbuild",
			Name:      "debt_payments_applied_total",
			Help:      "Completed debt payments applied, by payment method.",
		}, []string{"method"}),
		paymentAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nurbuild",
			Name:      "debt_payment_amount_total",
			Help:      "Sum of applied debt payments, by payment method.",
		}, []string{"method"}),
		paymentsReversed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nurbuild",
			Name:      "debt_payments_reversed_total",
			Help:      "Completed debt payments reversed by delete or status change.",
		}),
		creditRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nurbuild",
			Name:      "credit_limit_rejections_total",
			Help:      "Operations refused by the credit limit check.",
		}, []string{"operation"}),
		driftCorrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nurbuild",
			Name:      "outstanding_balance_corrections_total",
			Help:      "Customers whose outstanding balance was corrected by reconciliation.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.debtsCreated,
		m.paymentsApplied,
		m.paymentAmount,
		m.paymentsReversed,
		m.creditRejections,
		m.driftCorrections,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(route string, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *Metrics) DebtCreated(origin string) {
	if m == nil {
		return
	}
	m.debtsCreated.WithLabelValues(origin).Inc()
}

func (m *Metrics) PaymentApplied(method string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.paymentsApplied.WithLabelValues(method).Inc()
	m.paymentAmount.WithLabelValues(method).Add(amount.InexactFloat64())
}

func (m *Metrics) PaymentReversed() {
	if m == nil {
		return
	}
	m.paymentsReversed.Inc()
}

func (m *Metrics) CreditRejected(operation string) {
	if m == nil {
		return
	}
	m.creditRejections.WithLabelValues(operation).Inc()
}

func (m *Metrics) BalanceCorrected() {
	if m == nil {
		return
	}
	m.driftCorrections.Inc()
}
