package store

import (
	"fmt"
	"slices"
	"time"

	"github.com/pavelanni/grader/internal/model"
)

// ExportEvaluations builds an export of the evaluations of one question
// bank, or of all banks when bankID is zero, oldest first.
func (s *Store) ExportEvaluations(bankID int64) (model.EvaluationExport, error) {
	records, err := s.ListEvaluations(bankID)
	if err != nil {
		return model.EvaluationExport{}, fmt.Errorf("list evaluations: %w", err)
	}

	// ListEvaluations is newest first.
	slices.Reverse(records)
	if records == nil {
		records = []model.EvaluationRecord{}
	}

	return model.EvaluationExport{
		GeneratedAt: time.Now().UTC(),
		BankID:      bankID,
		Count:       len(records),
		Evaluations: records,
	}, nil
}
