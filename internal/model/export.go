package model

import "time"

// EvaluationExport is the top-level JSON structure for evaluation export.
type EvaluationExport struct {
	GeneratedAt time.Time          `json:"generated_at"`
	BankID      int64              `json:"question_bank_id,omitempty"`
	Count       int                `json:"count"`
	Evaluations []EvaluationRecord `json:"evaluations"`
}

// DatabaseStats holds record counts across the store.
type DatabaseStats struct {
	StudentCount      int      `json:"student_count"`
	QuestionBankCount int      `json:"question_bank_count"`
	EvaluationCount   int      `json:"evaluation_count"`
	AverageScore      *float64 `json:"average_score,omitempty"`
}
