package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "search_evaluator"

type Metrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	evaluationsTotal      *prometheus.CounterVec
	evaluationErrorsTotal *prometheus.CounterVec
	parseFallbackTotal    *prometheus.CounterVec
	imageSourceTotal      *prometheus.CounterVec
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	evaluationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "results_total",
			Help:      "Total successful evaluations by reason code.",
		},
		[]string{"service", "reason_code"},
	)
	evaluationErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "errors_total",
			Help:      "Total failed evaluations by kind.",
		},
		[]string{"service", "kind"},
	)
	parseFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "parse_fallback_total",
			Help:      "Total model replies where at least one field took its default value.",
		},
		[]string{"service"},
	)
	imageSourceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "image",
			Name:      "resolved_total",
			Help:      "Total resolved image URLs by source.",
		},
		[]string{"service", "source"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		evaluationsTotal,
		evaluationErrorsTotal,
		parseFallbackTotal,
		imageSourceTotal,
	)

	return &Metrics{
		registry:              registry,
		service:               service,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		evaluationsTotal:      evaluationsTotal,
		evaluationErrorsTotal: evaluationErrorsTotal,
		parseFallbackTotal:    parseFallbackTotal,
		imageSourceTotal:      imageSourceTotal,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// UnmatchedPath is the path label for requests that hit no registered route.
const UnmatchedPath = "unmatched"

// Middleware records request metrics labelled by the route template that
// route resolves for the request. An empty template, or a nil route, is
// recorded as UnmatchedPath so arbitrary URLs never become label values.
func (m *Metrics) Middleware(route func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := UnmatchedPath
		if route != nil {
			if tpl := route(r); tpl != "" {
				path = tpl
			}
		}
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) RecordEvaluation(reasonCode string, parseFallback bool) {
	if reasonCode == "" {
		reasonCode = "unknown"
	}
	m.evaluationsTotal.WithLabelValues(m.service, reasonCode).Inc()
	if parseFallback {
		m.parseFallbackTotal.WithLabelValues(m.service).Inc()
	}
}

func (m *Metrics) RecordEvaluationError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.evaluationErrorsTotal.WithLabelValues(m.service, kind).Inc()
}

func (m *Metrics) RecordImageSource(source string) {
	if source == "" {
		source = "unknown"
	}
	m.imageSourceTotal.WithLabelValues(m.service, source).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
