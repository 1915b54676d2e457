package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pavelanni/grader/internal/evaluate"
	"github.com/pavelanni/grader/internal/model"
)

type stubFactory struct{ err error }

func (s stubFactory) ForModel(name string) (evaluate.Evaluator, error) {
	if s.err != nil {
		return nil, s.err
	}
	return evaluate.EvaluatorFunc(func(_ context.Context, req evaluate.Request) (evaluate.Grade, error) {
		if req.Answer == "FAIL" {
			return evaluate.Grade{}, errors.New("upstream down")
		}
		return evaluate.Grade{MarksAwarded: req.Marks}, nil
	}), nil
}

func TestObserveDocument(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveDocument(model.StatusCompleted)
	m.ObserveDocument(model.StatusCompleted)
	m.ObserveDocument(model.StatusFailed)

	if got := testutil.ToFloat64(m.documents.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.documents.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}

func TestInstrumentedFactory(t *testing.T) {
	m := New(prometheus.NewRegistry())
	f := m.Factory(stubFactory{})

	ev, err := f.ForModel("")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	ctx := context.Background()
	if g, err := ev.Evaluate(ctx, evaluate.Request{Answer: "ok", Marks: 3}); err != nil || g.MarksAwarded != 3 {
		t.Errorf("Evaluate = %+v, %v", g, err)
	}
	if _, err := ev.Evaluate(ctx, evaluate.Request{Answer: "FAIL", Marks: 3}); err == nil {
		t.Error("expected error to pass through")
	}

	if got := testutil.ToFloat64(m.evalCalls.WithLabelValues("default", "ok")); got != 1 {
		t.Errorf("ok calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.evalCalls.WithLabelValues("default", "error")); got != 1 {
		t.Errorf("error calls = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.evalDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestInstrumentedFactoryError(t *testing.T) {
	m := New(prometheus.NewRegistry())
	if _, err := m.Factory(stubFactory{err: errors.New("no such model")}).ForModel("x"); err == nil {
		t.Error("expected factory error")
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/banks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for range 2 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/banks/7", nil))
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/banks/{id}", "404")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `http_requests_total{method="GET",path="/api/banks/{id}",status_code="404"} 2`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}
