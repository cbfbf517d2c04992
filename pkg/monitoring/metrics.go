package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection. A nil collector
// is valid and records nothing.
type MetricsCollector struct {
	serviceName string
	gatherer    prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	queueOperations     *prometheus.CounterVec
	queueLastTicket     *prometheus.GaugeVec
	queueTicketRetries  *prometheus.CounterVec
	queueBoardSize      *prometheus.GaugeVec
	invoicesCreated     *prometheus.CounterVec
	notificationsTotal  *prometheus.CounterVec
	storeErrors         *prometheus.CounterVec
}

// NewMetricsCollector creates a collector registered on reg. A nil reg uses
// a fresh registry so several collectors can coexist in one process.
func NewMetricsCollector(serviceName string, reg *prometheus.Registry) *MetricsCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &MetricsCollector{
		serviceName: serviceName,
		gatherer:    reg,

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code", "service"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint", "service"}),

		queueOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "queue",
			Name:      "operations_total",
			Help:      "Queue engine operations by outcome",
		}, []string{"operation", "status", "service"}),

		queueLastTicket: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "frontdesk",
			Subsystem: "queue",
			Name:      "last_ticket_number",
			Help:      "Last numero_ordre issued for the current queue day",
		}, []string{"service"}),

		queueTicketRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "queue",
			Name:      "ticket_retries_total",
			Help:      "Ticket re-allocations after a duplicate numero_ordre",
		}, []string{"service"}),

		queueBoardSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "frontdesk",
			Subsystem: "queue",
			Name:      "board_entries",
			Help:      "Entries per display bucket on the live board",
		}, []string{"status", "service"}),

		invoicesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "billing",
			Name:      "invoices_created_total",
			Help:      "Invoices created by outcome",
		}, []string{"status", "service"}),

		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Name:      "notifications_total",
			Help:      "User-facing notifications by kind",
		}, []string{"kind", "service"}),

		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Name:      "store_errors_total",
			Help:      "Row store failures surfaced to callers",
		}, []string{"operation", "service"}),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.queueOperations,
		m.queueLastTicket,
		m.queueTicketRetries,
		m.queueBoardSize,
		m.invoicesCreated,
		m.notificationsTotal,
		m.storeErrors,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordQueueOperation counts one engine operation
func (m *MetricsCollector) RecordQueueOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.queueOperations.WithLabelValues(operation, status, m.serviceName).Inc()
}

// RecordTicketIssued tracks the last ticket number handed out
func (m *MetricsCollector) RecordTicketIssued(numero int) {
	if m == nil {
		return
	}
	m.queueLastTicket.WithLabelValues(m.serviceName).Set(float64(numero))
}

// RecordTicketRetry counts a re-allocation after a duplicate ticket
func (m *MetricsCollector) RecordTicketRetry() {
	if m == nil {
		return
	}
	m.queueTicketRetries.WithLabelValues(m.serviceName).Inc()
}

// RecordBoard sets the per-bucket board gauges
func (m *MetricsCollector) RecordBoard(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.queueBoardSize.WithLabelValues(status, m.serviceName).Set(float64(n))
	}
}

// RecordInvoiceCreated counts one invoice creation attempt
func (m *MetricsCollector) RecordInvoiceCreated(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.invoicesCreated.WithLabelValues(status, m.serviceName).Inc()
}

// RecordNotification counts a user-facing notification
func (m *MetricsCollector) RecordNotification(kind string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, m.serviceName).Inc()
}

// RecordStoreError counts a row store failure
func (m *MetricsCollector) RecordStoreError(operation string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(operation, m.serviceName).Inc()
}

// Gatherer exposes the underlying registry, mostly for tests
func (m *MetricsCollector) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// HTTPMiddleware creates middleware for HTTP request metrics. Callers pass
// the route template as endpoint resolver to keep label cardinality bounded.
func (m *MetricsCollector) HTTPMiddleware(endpoint func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			path := r.URL.Path
			if endpoint != nil {
				path = endpoint(r)
			}
			m.RecordHTTPRequest(r.Method, path, strconv.Itoa(wrapper.statusCode), time.Since(start))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// StatusCode returns the captured response status
func (rw *responseWriter) StatusCode() int {
	return rw.statusCode
}
