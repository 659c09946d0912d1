package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "refeitorio"

// Metrics mengumpulkan metrik Prometheus untuk aplikasi: HTTP dan ledger.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	payments        prometheus.Counter
	absencesCleared prometheus.Counter
	importRows      *prometheus.CounterVec
	studentsBlocked prometheus.Counter
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration per route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	payments := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_total",
		Help:      "Debt payments registered.",
	})
	cleared := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_absences_cleared_total",
		Help:      "Pending absences settled by payments.",
	})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_rows_total",
		Help:      "Attendance rows applied by imports, by outcome.",
	}, []string{"outcome"})
	blocked := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "students_blocked_total",
		Help:      "Students blocked by absence accrual.",
	})
	registry.MustRegister(requests, duration, payments, cleared, rows, blocked)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		payments:        payments,
		absencesCleared: cleared,
		importRows:      rows,
		studentsBlocked: blocked,
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

// PaymentSettled counts a payment and the absences it cleared.
func (m *Metrics) PaymentSettled(absences int) {
	if m == nil {
		return
	}
	m.payments.Inc()
	m.absencesCleared.Add(float64(absences))
}

// RowsImported counts imported rows by outcome.
func (m *Metrics) RowsImported(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.importRows.WithLabelValues(outcome).Add(float64(n))
}

// StudentsBlocked counts students blocked during an import.
func (m *Metrics) StudentsBlocked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.studentsBlocked.Add(float64(n))
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
