package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the workflow engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	effectTotal     *prometheus.CounterVec
	leaseWait       prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transitions_total",
		Help: "Workflow transition attempts by domain, action and outcome",
	}, []string{"domain", "action", "outcome"})

	effectTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_effects_total",
		Help: "Side-effect deliveries by kind and status",
	}, []string{"kind", "status"})

	leaseWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "workflow_lease_wait_seconds",
		Help:    "Time spent waiting for the per-instance lease",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, effectTotal, leaseWait, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitionTotal: transitionTotal,
		effectTotal:     effectTotal,
		leaseWait:       leaseWait,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveTransition records a transition attempt outcome.
func (s *MetricsService) ObserveTransition(domain, action, outcome string) {
	s.transitionTotal.WithLabelValues(domain, action, outcome).Inc()
}

// ObserveEffect records a side-effect delivery outcome.
func (s *MetricsService) ObserveEffect(kind, status string) {
	s.effectTotal.WithLabelValues(kind, status).Inc()
}

// ObserveLeaseWait records how long a transition waited for its lease.
func (s *MetricsService) ObserveLeaseWait(d time.Duration) {
	s.leaseWait.Observe(d.Seconds())
}
