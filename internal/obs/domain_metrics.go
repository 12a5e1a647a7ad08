package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoiceWritesTotal counts create, update and delete outcomes.
	InvoiceWritesTotal *prometheus.CounterVec
	// InvoiceNumberRetries counts generated numbers that collided with an existing invoice.
	InvoiceNumberRetries prometheus.Counter
	// InvoiceComputeLatency records total pipeline latency in milliseconds.
	InvoiceComputeLatency prometheus.Histogram
	// InvoicesMarkedOverdue counts invoices moved to overdue by the sweep.
	InvoicesMarkedOverdue prometheus.Counter
	// AuthAttemptsTotal counts login and registration outcomes.
	AuthAttemptsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers invoice collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoiceWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_writes_total",
			Help:      "Invoice write operations by operation and result.",
		}, []string{"op", "result"})
		InvoiceNumberRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_number_retries_total",
			Help:      "Generated invoice numbers rejected by the store uniqueness constraint.",
		})
		InvoiceComputeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_compute_duration_ms",
			Help:      "Latency of validation plus totals computation in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})
		InvoicesMarkedOverdue = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_marked_overdue_total",
			Help:      "Invoices moved from pending to overdue.",
		})
		AuthAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by action and result.",
		}, []string{"action", "result"})

		InvoiceWritesTotal = registerOrReuse(reg, InvoiceWritesTotal)
		InvoiceNumberRetries = registerOrReuse(reg, InvoiceNumberRetries)
		InvoiceComputeLatency = registerOrReuse(reg, InvoiceComputeLatency)
		InvoicesMarkedOverdue = registerOrReuse(reg, InvoicesMarkedOverdue)
		AuthAttemptsTotal = registerOrReuse(reg, AuthAttemptsTotal)
	})
}

// CountInvoiceWrite records one write outcome when metrics are registered.
func CountInvoiceWrite(op, result string) {
	if InvoiceWritesTotal != nil {
		InvoiceWritesTotal.WithLabelValues(op, result).Inc()
	}
}

// CountAuthAttempt records one auth outcome when metrics are registered.
func CountAuthAttempt(action, result string) {
	if AuthAttemptsTotal != nil {
		AuthAttemptsTotal.WithLabelValues(action, result).Inc()
	}
}
