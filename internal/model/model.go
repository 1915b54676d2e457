package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidQuestionBank is returned when a question bank fails load-time validation.
var ErrInvalidQuestionBank = errors.New("invalid question bank")

// NoAnswerRemark is recorded for every question the student left blank.
const NoAnswerRemark = "No answer provided"

// QuestionType describes the kind of answer a question expects.
type QuestionType string

const (
	TypeDefine    QuestionType = "define"
	TypeExplain   QuestionType = "explain"
	TypeSolve     QuestionType = "solve"
	TypeProve     QuestionType = "prove"
	TypeShort     QuestionType = "short"
	TypeLong      QuestionType = "long"
	TypeCalculate QuestionType = "calculate"
	TypeAnalyze   QuestionType = "analyze"
)

var validTypes = map[QuestionType]bool{
	TypeDefine:    true,
	TypeExplain:   true,
	TypeSolve:     true,
	TypeProve:     true,
	TypeShort:     true,
	TypeLong:      true,
	TypeCalculate: true,
	TypeAnalyze:   true,
}

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	return validTypes[t]
}

// MarkDistribution describes where a bank's per-question marks come from.
type MarkDistribution string

const (
	// DistributionInPaper takes marks from the question paper itself.
	DistributionInPaper MarkDistribution = "in_paper"
	// DistributionUniform gives every top-level question the same marks.
	DistributionUniform MarkDistribution = "uniform"
)

// QuestionNode is a question or sub-question of a question bank.
// Only one level of sub-questions is evaluated.
type QuestionNode struct {
	ID           string         `json:"id" yaml:"id"`
	Text         string         `json:"text" yaml:"text"`
	Type         QuestionType   `json:"type" yaml:"type"`
	Marks        int            `json:"marks" yaml:"marks"`
	ModelAnswer  string         `json:"model_answer,omitempty" yaml:"model_answer,omitempty"`
	SubQuestions []QuestionNode `json:"sub_questions,omitempty" yaml:"sub_questions,omitempty"`
}

// QuestionBank is the grading rubric for a batch of answer sheets.
type QuestionBank struct {
	ID               int64            `json:"id,omitempty" yaml:"id,omitempty"`
	Name             string           `json:"name" yaml:"name"`
	Description      string           `json:"description,omitempty" yaml:"description,omitempty"`
	TotalMarks       int              `json:"total_marks" yaml:"total_marks"`
	MarkDistribution MarkDistribution `json:"mark_distribution,omitempty" yaml:"mark_distribution,omitempty"`
	PerQuestionMarks int              `json:"per_question_marks,omitempty" yaml:"per_question_marks,omitempty"`
	QuestionCount    int              `json:"question_count" yaml:"question_count"`
	Questions        []QuestionNode   `json:"questions" yaml:"questions"`
	CreatedAt        time.Time        `json:"created_at,omitzero" yaml:"-"`
}

// Validate checks the bank and fills in defaults: missing types become
// "explain", uniform banks get their per-question marks applied, and
// QuestionCount and TotalMarks are derived when absent.
func (b *QuestionBank) Validate() error {
	if len(b.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidQuestionBank)
	}
	if b.QuestionCount != 0 && b.QuestionCount != len(b.Questions) {
		return fmt.Errorf("%w: question_count %d does not match %d questions",
			ErrInvalidQuestionBank, b.QuestionCount, len(b.Questions))
	}
	b.QuestionCount = len(b.Questions)

	switch b.MarkDistribution {
	case "":
		b.MarkDistribution = DistributionInPaper
		fallthrough
	case DistributionInPaper:
		if b.PerQuestionMarks != 0 {
			return fmt.Errorf("%w: per_question_marks is only allowed for uniform distribution", ErrInvalidQuestionBank)
		}
	case DistributionUniform:
		if b.PerQuestionMarks <= 0 {
			return fmt.Errorf("%w: per_question_marks is required for uniform distribution", ErrInvalidQuestionBank)
		}
		for i := range b.Questions {
			b.Questions[i].Marks = b.PerQuestionMarks
		}
	default:
		return fmt.Errorf("%w: unknown mark distribution %q", ErrInvalidQuestionBank, b.MarkDistribution)
	}

	seen := make(map[string]bool)
	for i := range b.Questions {
		q := &b.Questions[i]
		if err := q.validate(seen); err != nil {
			return err
		}
		for j := range q.SubQuestions {
			if err := q.SubQuestions[j].validate(seen); err != nil {
				return err
			}
		}
	}

	if b.TotalMarks < 0 {
		return fmt.Errorf("%w: negative total_marks", ErrInvalidQuestionBank)
	}
	if b.TotalMarks == 0 {
		for _, q := range b.Questions {
			b.TotalMarks += q.Marks
		}
	}
	return nil
}

func (q *QuestionNode) validate(seen map[string]bool) error {
	q.ID = strings.TrimSpace(q.ID)
	if q.ID == "" {
		return fmt.Errorf("%w: question without id", ErrInvalidQuestionBank)
	}
	if seen[q.ID] {
		return fmt.Errorf("%w: duplicate question id %q", ErrInvalidQuestionBank, q.ID)
	}
	seen[q.ID] = true
	if q.Marks <= 0 {
		return fmt.Errorf("%w: question %s must carry positive marks", ErrInvalidQuestionBank, q.ID)
	}
	if q.Type == "" {
		q.Type = TypeExplain
	}
	q.Type = QuestionType(strings.ToLower(string(q.Type)))
	if !q.Type.Valid() {
		return fmt.Errorf("%w: question %s has unknown type %q", ErrInvalidQuestionBank, q.ID, q.Type)
	}
	return nil
}

// PossibleMarks sums the marks of every question and sub-question that
// takes part in evaluation.
func (b QuestionBank) PossibleMarks() int {
	total := 0
	for _, q := range b.Questions {
		total += q.Marks
		for _, sq := range q.SubQuestions {
			total += sq.Marks
		}
	}
	return total
}

// AnswerMap maps a question identifier ("Q1", "Q1a") to the student's answer.
type AnswerMap map[string]string

// QuestionKey returns the answer map key for top-level question n.
func QuestionKey(n int) string {
	return "Q" + strconv.Itoa(n)
}

// Status is the processing status of one answer sheet.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ItemResult is the evaluation of a single question or sub-question.
type ItemResult struct {
	QuestionID    string  `json:"question_id"`
	QuestionText  string  `json:"question_text"`
	StudentAnswer string  `json:"student_answer"`
	MarksAwarded  int     `json:"marks_awarded"`
	TotalMarks    int     `json:"total_marks"`
	Percentage    float64 `json:"percentage"`
	Justification string  `json:"justification"`
	Remarks       string  `json:"remarks"`
}

// EvaluationOutcome is the result of evaluating one answer sheet.
// It is not modified after it has been handed to the caller.
type EvaluationOutcome struct {
	EvaluationID       int64             `json:"evaluation_id,omitempty"`
	StudentName        string            `json:"student_name"`
	FileName           string            `json:"file_name,omitempty"`
	TotalMarksObtained int               `json:"total_marks_obtained"`
	TotalMarksPossible int               `json:"total_marks_possible"`
	Percentage         float64           `json:"percentage"`
	Answers            AnswerMap         `json:"parsed_answers,omitempty"`
	Items              []ItemResult      `json:"evaluation_results,omitempty"`
	Remarks            map[string]string `json:"remarks,omitempty"`
	Status             Status            `json:"status"`
	Error              string            `json:"error,omitempty"`
}

// FailedOutcome builds the outcome reported when a sheet could not be evaluated.
func FailedOutcome(studentName string, err error) EvaluationOutcome {
	out := EvaluationOutcome{
		StudentName: studentName,
		Status:      StatusFailed,
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// Student is a person whose answer sheets were evaluated.
type Student struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// EvaluationRecord is a persisted evaluation.
type EvaluationRecord struct {
	ID                 int64             `json:"id"`
	StudentID          int64             `json:"student_id"`
	StudentName        string            `json:"student_name"`
	QuestionBankID     int64             `json:"question_bank_id"`
	QuestionBankName   string            `json:"question_bank_name"`
	FileName           string            `json:"answer_file_name"`
	TotalMarksObtained int               `json:"total_marks_obtained"`
	TotalMarksPossible int               `json:"total_marks_possible"`
	Percentage         float64           `json:"percentage"`
	Answers            AnswerMap         `json:"parsed_answers"`
	Items              []ItemResult      `json:"evaluation_results"`
	Remarks            map[string]string `json:"remarks"`
	Status             Status            `json:"processing_status"`
	CreatedAt          time.Time         `json:"created_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
}

// Document is one uploaded answer sheet.
type Document struct {
	Filename string
	Content  []byte
}
