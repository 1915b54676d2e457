// Package handler serves the grader JSON API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/grader/internal/engine"
	"github.com/pavelanni/grader/internal/i18n"
	"github.com/pavelanni/grader/internal/model"
	"github.com/pavelanni/grader/internal/store"
)

// Batcher evaluates a batch of answer sheets.
type Batcher interface {
	EvaluateBatch(ctx context.Context, docs []model.Document, bankID int64, modelName string, chunkSize int) ([]model.EvaluationOutcome, error)
}

// Config holds the request limits of the API.
type Config struct {
	MaxFiles     int
	ChunkSize    int
	MaxUploadMiB int64
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store      *store.Store
	batcher    Batcher
	translator *i18n.Translator
	config     Config
}

// New creates a new Handler.
func New(s *store.Store, b Batcher, tr *i18n.Translator, cfg Config) *Handler {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = engine.DefaultChunkSize
	}
	if cfg.MaxUploadMiB <= 0 {
		cfg.MaxUploadMiB = 64
	}
	return &Handler{store: s, batcher: b, translator: tr, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/banks", h.handleListBanks)
		r.Post("/banks", h.handleCreateBank)
		r.Get("/banks/{bankID}", h.handleGetBank)
		r.Post("/banks/{bankID}/evaluate", h.handleEvaluate)
		r.Get("/evaluations", h.handleListEvaluations)
		r.Get("/evaluations/{evaluationID}", h.handleGetEvaluation)
		r.Get("/stats", h.handleStats)
		r.Get("/report", h.handleReport)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		h.internalError(w, "failed to load stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// optionalID parses an optional positive integer query parameter.
func optionalID(r *http.Request, name string) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}
