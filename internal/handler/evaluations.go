package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/pavelanni/grader/internal/engine"
	"github.com/pavelanni/grader/internal/model"
	"github.com/pavelanni/grader/internal/report"
	"github.com/pavelanni/grader/internal/store"
)

type evaluateResponse struct {
	Summary report.Summary            `json:"summary"`
	Results []model.EvaluationOutcome `json:"results"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	bankID, err := idParam(r, "bankID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.store.QuestionBank(bankID); err != nil {
		if errors.Is(err, store.ErrQuestionBankNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.internalError(w, "failed to load question bank", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadMiB<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	if h.config.MaxFiles > 0 && len(files) > h.config.MaxFiles {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many files: %d (max %d)", len(files), h.config.MaxFiles))
		return
	}

	chunkSize := h.config.ChunkSize
	if s := r.FormValue("chunk_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid chunk_size")
			return
		}
		chunkSize = n
	}

	docs := make([]model.Document, 0, len(files))
	for _, fh := range files {
		doc, err := readUpload(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		docs = append(docs, doc)
	}

	results, err := h.batcher.EvaluateBatch(r.Context(), docs, bankID, r.FormValue("model"), chunkSize)
	switch {
	case errors.Is(err, engine.ErrTooManyFiles), errors.Is(err, engine.ErrInvalidChunkSize):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.internalError(w, "evaluation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		Summary: report.Summarize(report.FromOutcomes(results)),
		Results: results,
	})
}

func readUpload(fh *multipart.FileHeader) (model.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return model.Document{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return model.Document{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return model.Document{Filename: fh.Filename, Content: content}, nil
}

// handleListEvaluations lists stored evaluations, filtered by student name
// substring or by question bank.
func (h *Handler) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	bankID, err := optionalID(r, "bank_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var recs []model.EvaluationRecord
	if student := r.URL.Query().Get("student"); student != "" {
		recs, err = h.store.SearchEvaluations(student)
	} else {
		recs, err = h.store.ListEvaluations(bankID)
	}
	if err != nil {
		h.internalError(w, "failed to list evaluations", err)
		return
	}
	if recs == nil {
		recs = []model.EvaluationRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "evaluationID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.store.Evaluation(id)
	if errors.Is(err, store.ErrEvaluationNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, "failed to load evaluation", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleReport renders a plain text report in the request language.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	bankID, err := optionalID(r, "bank_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var bankName string
	if bankID != 0 {
		bank, err := h.store.QuestionBank(bankID)
		if errors.Is(err, store.ErrQuestionBankNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			h.internalError(w, "failed to load question bank", err)
			return
		}
		bankName = bank.Name
	}

	recs, err := h.store.ListEvaluations(bankID)
	if err != nil {
		h.internalError(w, "failed to list evaluations", err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := report.WriteText(r.Context(), w, h.translator, bankName, report.FromRecords(recs)); err != nil {
		h.internalError(w, "failed to render report", err)
	}
}
