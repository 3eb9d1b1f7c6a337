package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	billing         *BillingMetrics
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik billing.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gemvault_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gemvault_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	registry.MustRegister(requests, duration)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		billing:         NewBillingMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Billing returns the billing collectors registered on this registry.
func (m *Metrics) Billing() *BillingMetrics {
	if m == nil {
		return nil
	}
	return m.billing
}

// BillingMetrics counts invoice and payment activity. All methods are nil-safe.
type BillingMetrics struct {
	invoicesCreated    prometheus.Counter
	schedulesGenerated prometheus.Counter
	paymentTransitions *prometheus.CounterVec
	allocatedAmount    prometheus.Counter
	overdueMarked      prometheus.Counter
}

// NewBillingMetrics registers the billing collectors against registerer, or the
// default Prometheus registerer when it is nil.
func NewBillingMetrics(registerer prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		invoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gemvault_billing_invoices_created_total",
			Help: "Invoices created.",
		}),
		schedulesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gemvault_billing_schedules_generated_total",
			Help: "Payment schedule rows generated from payment terms.",
		}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemvault_billing_payment_transitions_total",
			Help: "Payment state transitions by target state.",
		}, []string{"state"}),
		allocatedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gemvault_billing_allocated_amount_total",
			Help: "Currency amount allocated to payment schedules.",
		}),
		overdueMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gemvault_billing_schedules_overdue_total",
			Help: "Schedule rows marked overdue by the sweep.",
		}),
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(m.invoicesCreated, m.schedulesGenerated, m.paymentTransitions, m.allocatedAmount, m.overdueMarked)
	return m
}

// InvoiceCreated counts a new invoice.
func (m *BillingMetrics) InvoiceCreated() {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc()
}

// SchedulesGenerated counts generated schedule rows.
func (m *BillingMetrics) SchedulesGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.schedulesGenerated.Add(float64(n))
}

// PaymentTransition counts a payment moving into state.
func (m *BillingMetrics) PaymentTransition(state string) {
	if m == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(state).Inc()
}

// Allocated adds an allocated amount.
func (m *BillingMetrics) Allocated(amount decimal.Decimal) {
	if m == nil || !amount.IsPositive() {
		return
	}
	m.allocatedAmount.Add(amount.InexactFloat64())
}

// OverdueMarked counts schedule rows flipped to overdue.
func (m *BillingMetrics) OverdueMarked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.overdueMarked.Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
