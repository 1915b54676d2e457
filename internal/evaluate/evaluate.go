// Package evaluate scores an answer map against a question bank.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/grader/internal/model"
)

// ErrEvaluator marks a failed evaluator call. The whole document is
// abandoned when it occurs.
var ErrEvaluator = errors.New("evaluator failure")

// Request is what the evaluator needs to grade one question.
type Request struct {
	QuestionID   string
	QuestionText string
	ModelAnswer  string
	Answer       string
	Marks        int
	Type         model.QuestionType
}

// Grade is the evaluator's verdict for one answer.
type Grade struct {
	MarksAwarded  int
	Justification string
	Remarks       string
}

// Evaluator grades a single answer. Implementations must be safe for
// concurrent use when the same Evaluator is shared across documents.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Grade, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, req Request) (Grade, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, req Request) (Grade, error) {
	return f(ctx, req)
}

// Aggregator walks a question bank and folds evaluator grades into an
// EvaluationOutcome.
type Aggregator struct {
	evaluator Evaluator
}

// NewAggregator returns an Aggregator that grades answers with ev.
func NewAggregator(ev Evaluator) *Aggregator {
	return &Aggregator{evaluator: ev}
}

// Aggregate evaluates every top-level question and its direct sub-questions
// in bank order. Blank answers score zero without calling the evaluator.
//
// Evaluation is all-or-nothing: if any evaluator call fails, the returned
// outcome is a failed one with no items, and the error wraps ErrEvaluator.
func (a *Aggregator) Aggregate(ctx context.Context, studentName string, bank model.QuestionBank, answers model.AnswerMap) (model.EvaluationOutcome, error) {
	out := model.EvaluationOutcome{
		StudentName: studentName,
		Answers:     answers,
		Remarks:     make(map[string]string),
	}

	for _, q := range bank.Questions {
		if err := a.item(ctx, &out, q, answers[q.ID]); err != nil {
			return model.FailedOutcome(studentName, err), err
		}
		for _, sq := range q.SubQuestions {
			if err := a.item(ctx, &out, sq, answers[sq.ID]); err != nil {
				return model.FailedOutcome(studentName, err), err
			}
		}
	}

	out.Percentage = Percentage(out.TotalMarksObtained, out.TotalMarksPossible)
	out.Status = model.StatusCompleted
	return out, nil
}

func (a *Aggregator) item(ctx context.Context, out *model.EvaluationOutcome, q model.QuestionNode, answer string) error {
	answer = strings.TrimSpace(answer)
	out.TotalMarksPossible += q.Marks

	if answer == "" {
		out.Remarks[q.ID] = model.NoAnswerRemark
		out.Items = append(out.Items, model.ItemResult{
			QuestionID:    q.ID,
			QuestionText:  q.Text,
			TotalMarks:    q.Marks,
			Justification: model.NoAnswerRemark,
			Remarks:       model.NoAnswerRemark,
		})
		return nil
	}

	grade, err := a.evaluator.Evaluate(ctx, Request{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		ModelAnswer:  q.ModelAnswer,
		Answer:       answer,
		Marks:        q.Marks,
		Type:         q.Type,
	})
	if err != nil {
		if errors.Is(err, ErrEvaluator) {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
		return fmt.Errorf("question %s: %w: %w", q.ID, ErrEvaluator, err)
	}
	if grade.MarksAwarded < 0 || grade.MarksAwarded > q.Marks {
		return fmt.Errorf("question %s: %w: awarded %d of %d marks",
			q.ID, ErrEvaluator, grade.MarksAwarded, q.Marks)
	}

	out.TotalMarksObtained += grade.MarksAwarded
	if grade.MarksAwarded < q.Marks && grade.Remarks != "" {
		out.Remarks[q.ID] = grade.Remarks
	}
	out.Items = append(out.Items, model.ItemResult{
		QuestionID:    q.ID,
		QuestionText:  q.Text,
		StudentAnswer: answer,
		MarksAwarded:  grade.MarksAwarded,
		TotalMarks:    q.Marks,
		Percentage:    Percentage(grade.MarksAwarded, q.Marks),
		Justification: grade.Justification,
		Remarks:       grade.Remarks,
	})
	return nil
}

// Percentage returns obtained/possible*100, or 0 when nothing was possible.
func Percentage(obtained, possible int) float64 {
	if possible <= 0 {
		return 0
	}
	return float64(obtained) / float64(possible) * 100
}
