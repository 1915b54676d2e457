package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/pavelanni/grader/internal/model"
	"github.com/pavelanni/grader/internal/store"
)

const maxBankBytes = 4 << 20

func (h *Handler) handleListBanks(w http.ResponseWriter, _ *http.Request) {
	banks, err := h.store.ListQuestionBanks()
	if err != nil {
		h.internalError(w, "failed to list question banks", err)
		return
	}
	if banks == nil {
		banks = []model.QuestionBank{}
	}
	writeJSON(w, http.StatusOK, banks)
}

func (h *Handler) handleGetBank(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "bankID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bank, err := h.store.QuestionBank(id)
	if errors.Is(err, store.ErrQuestionBankNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, "failed to load question bank", err)
		return
	}
	writeJSON(w, http.StatusOK, bank)
}

// handleCreateBank accepts a question bank as JSON, or as YAML when the
// content type says so.
func (h *Handler) handleCreateBank(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBankBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "question bank too large")
		return
	}

	name := "bank.json"
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		name = "bank.yaml"
	}

	bank, err := store.DecodeQuestionBank(name, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.store.CreateQuestionBank(bank)
	if err != nil {
		h.internalError(w, "failed to save question bank", err)
		return
	}
	saved, err := h.store.QuestionBank(id)
	if err != nil {
		h.internalError(w, "failed to load question bank", err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}
