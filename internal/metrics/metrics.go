// Package metrics exposes Prometheus counters for the HTTP layer and for the
// ticket workflow and stock ledger.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "repairshop"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	TicketTransitions   *prometheus.CounterVec
	TicketsCreated      prometheus.Counter
	StockMovements      *prometheus.CounterVec
	StockUnits          *prometheus.CounterVec
	InsufficientStock   prometheus.Counter
	ReintegrationErrors prometheus.Counter
	NotificationsSent   *prometheus.CounterVec
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path"})

	m.TicketTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticket_transitions_total",
		Help:      "Committed ticket state changes",
	}, []string{"from", "to"})

	m.TicketsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_created_total",
		Help:      "Tickets opened at intake",
	})

	m.StockMovements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_movements_total",
		Help:      "Stock movements written, by kind",
	}, []string{"kind"})

	m.StockUnits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_units_total",
		Help:      "Units moved, by movement kind",
	}, []string{"kind"})

	m.InsufficientStock = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "insufficient_stock_total",
		Help:      "Stock decreases refused for lack of units",
	})

	m.ReintegrationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reintegration_errors_total",
		Help:      "Part usages that could not be returned to stock during cancellation",
	})

	m.NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification attempts by event and outcome",
	}, []string{"event", "status"})

	registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.TicketTransitions, m.TicketsCreated,
		m.StockMovements, m.StockUnits, m.InsufficientStock, m.ReintegrationErrors,
		m.NotificationsSent,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// GinMiddleware records request counts and latency using the route template as path.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.TicketTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordTicketCreated() {
	if m == nil {
		return
	}
	m.TicketsCreated.Inc()
}

func (m *Metrics) RecordMovement(kind string, qty int) {
	if m == nil {
		return
	}
	m.StockMovements.WithLabelValues(kind).Inc()
	m.StockUnits.WithLabelValues(kind).Add(float64(qty))
}

func (m *Metrics) RecordInsufficientStock() {
	if m == nil {
		return
	}
	m.InsufficientStock.Inc()
}

func (m *Metrics) RecordReintegrationError() {
	if m == nil {
		return
	}
	m.ReintegrationErrors.Inc()
}

func (m *Metrics) RecordNotification(event string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.NotificationsSent.WithLabelValues(event, status).Inc()
}
