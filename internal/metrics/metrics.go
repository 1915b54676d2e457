// Package metrics exposes Prometheus instrumentation for evaluation runs
// and the HTTP API.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/grader/internal/engine"
	"github.com/pavelanni/grader/internal/evaluate"
	"github.com/pavelanni/grader/internal/model"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	gatherer prometheus.Gatherer

	documents     *prometheus.CounterVec
	evalCalls     *prometheus.CounterVec
	evalDuration  *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.SummaryVec
}

// New registers the grader collectors with reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		documents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grader_documents_total",
				Help: "Answer sheets processed, by final status",
			},
			[]string{"status"},
		),
		evalCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grader_evaluator_calls_total",
				Help: "Per-question evaluator calls, by model and result",
			},
			[]string{"model", "result"},
		),
		evalDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grader_evaluator_duration_seconds",
				Help:    "Time spent in one evaluator call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		httpDurations: f.NewSummaryVec(
			prometheus.SummaryOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request duration in seconds",
				Objectives: map[float64]float64{
					0.5:  0.05,
					0.9:  0.01,
					0.99: 0.001,
				},
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// ObserveDocument counts one finished answer sheet.
func (m *Metrics) ObserveDocument(status model.Status) {
	m.documents.WithLabelValues(string(status)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records count and latency of every HTTP request, labelled by
// the matched route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		m.httpDurations.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(r.Method, path, code).Inc()
	})
}

// Factory wraps an evaluator factory so every evaluator it returns is
// instrumented.
func (m *Metrics) Factory(next engine.EvaluatorFactory) engine.EvaluatorFactory {
	return factory{m: m, next: next}
}

type factory struct {
	m    *Metrics
	next engine.EvaluatorFactory
}

func (f factory) ForModel(name string) (evaluate.Evaluator, error) {
	ev, err := f.next.ForModel(name)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "default"
	}
	return f.m.Evaluator(name, ev), nil
}

// Evaluator instruments ev under the given model label.
func (m *Metrics) Evaluator(modelName string, ev evaluate.Evaluator) evaluate.Evaluator {
	calls := m.evalCalls.MustCurryWith(prometheus.Labels{"model": modelName})
	duration := m.evalDuration.WithLabelValues(modelName)
	return evaluate.EvaluatorFunc(func(ctx context.Context, req evaluate.Request) (evaluate.Grade, error) {
		timer := prometheus.NewTimer(duration)
		g, err := ev.Evaluate(ctx, req)
		timer.ObserveDuration()
		if err != nil {
			calls.WithLabelValues("error").Inc()
			return g, err
		}
		calls.WithLabelValues("ok").Inc()
		return g, nil
	})
}
