package evaluate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/grader/internal/model"
)

type fakeEvaluator struct {
	calls  []Request
	grades map[string]Grade
	fail   map[string]error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, req Request) (Grade, error) {
	f.calls = append(f.calls, req)
	if err := f.fail[req.QuestionID]; err != nil {
		return Grade{}, err
	}
	if g, ok := f.grades[req.QuestionID]; ok {
		return g, nil
	}
	return Grade{MarksAwarded: req.Marks, Justification: "correct"}, nil
}

func TestAggregateBlankAnswerSkipsEvaluator(t *testing.T) {
	ev := &fakeEvaluator{}
	bank := model.QuestionBank{Questions: []model.QuestionNode{
		{ID: "Q1", Text: "Define a limit", Type: model.TypeDefine, Marks: 10},
	}}

	out, err := NewAggregator(ev).Aggregate(context.Background(), "Jane Doe", bank, model.AnswerMap{"Q1": "   "})
	require.NoError(t, err)

	assert.Empty(t, ev.calls)
	assert.Equal(t, model.StatusCompleted, out.Status)
	assert.Equal(t, 0, out.TotalMarksObtained)
	assert.Equal(t, 10, out.TotalMarksPossible)
	assert.Equal(t, 0.0, out.Percentage)
	require.Len(t, out.Items, 1)
	assert.Equal(t, model.ItemResult{
		QuestionID:    "Q1",
		QuestionText:  "Define a limit",
		TotalMarks:    10,
		Justification: model.NoAnswerRemark,
		Remarks:       model.NoAnswerRemark,
	}, out.Items[0])
	assert.Equal(t, map[string]string{"Q1": model.NoAnswerRemark}, out.Remarks)
}

func TestAggregateSubQuestionAnsweredParentBlank(t *testing.T) {
	ev := &fakeEvaluator{grades: map[string]Grade{
		"Q1a": {MarksAwarded: 3, Justification: "partly right", Remarks: "missing the codomain"},
	}}
	bank := model.QuestionBank{Questions: []model.QuestionNode{
		{ID: "Q1", Text: "Functions", Marks: 10, SubQuestions: []model.QuestionNode{
			{ID: "Q1a", Text: "Define a function", Marks: 5},
		}},
	}}

	out, err := NewAggregator(ev).Aggregate(context.Background(), "Jane Doe", bank,
		model.AnswerMap{"Q1": "", "Q1a": "a mapping"})
	require.NoError(t, err)

	require.Len(t, ev.calls, 1)
	assert.Equal(t, "Q1a", ev.calls[0].QuestionID)
	assert.Equal(t, "a mapping", ev.calls[0].Answer)
	assert.Equal(t, 5, ev.calls[0].Marks)

	assert.Equal(t, 15, out.TotalMarksPossible)
	assert.Equal(t, 3, out.TotalMarksObtained)
	assert.InDelta(t, 20.0, out.Percentage, 1e-9)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "Q1", out.Items[0].QuestionID)
	assert.Equal(t, 0, out.Items[0].MarksAwarded)
	assert.Equal(t, "Q1a", out.Items[1].QuestionID)
	assert.InDelta(t, 60.0, out.Items[1].Percentage, 1e-9)
	assert.Equal(t, map[string]string{
		"Q1":  model.NoAnswerRemark,
		"Q1a": "missing the codomain",
	}, out.Remarks)
}

func TestAggregateEvaluatorFailureAbandonsDocument(t *testing.T) {
	ev := &fakeEvaluator{fail: map[string]error{"Q2": errors.New("connection reset")}}
	bank := model.QuestionBank{Questions: []model.QuestionNode{
		{ID: "Q1", Text: "one", Marks: 5},
		{ID: "Q2", Text: "two", Marks: 5},
		{ID: "Q3", Text: "three", Marks: 5},
	}}
	answers := model.AnswerMap{"Q1": "a", "Q2": "b", "Q3": "c"}

	out, err := NewAggregator(ev).Aggregate(context.Background(), "Jane Doe", bank, answers)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEvaluator)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Len(t, ev.calls, 2, "evaluation stops at the failing question")
	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, "Jane Doe", out.StudentName)
	assert.Empty(t, out.Items)
	assert.NotEmpty(t, out.Error)
}

func TestAggregateRejectsOutOfRangeMarks(t *testing.T) {
	for _, awarded := range []int{-1, 6} {
		ev := &fakeEvaluator{grades: map[string]Grade{"Q1": {MarksAwarded: awarded}}}
		bank := model.QuestionBank{Questions: []model.QuestionNode{{ID: "Q1", Text: "one", Marks: 5}}}

		out, err := NewAggregator(ev).Aggregate(context.Background(), "X", bank, model.AnswerMap{"Q1": "a"})
		assert.ErrorIs(t, err, ErrEvaluator)
		assert.Equal(t, model.StatusFailed, out.Status)
	}
}

func TestAggregateFullMarksDropsRemark(t *testing.T) {
	ev := &fakeEvaluator{grades: map[string]Grade{
		"Q1": {MarksAwarded: 5, Remarks: "nothing to add"},
		"Q2": {MarksAwarded: 2},
	}}
	bank := model.QuestionBank{Questions: []model.QuestionNode{
		{ID: "Q1", Text: "one", Marks: 5},
		{ID: "Q2", Text: "two", Marks: 5},
	}}

	out, err := NewAggregator(ev).Aggregate(context.Background(), "X", bank, model.AnswerMap{"Q1": "a", "Q2": "b"})
	require.NoError(t, err)
	assert.Empty(t, out.Remarks, "no remark for full marks or for a deduction without a remark")
	assert.Equal(t, "nothing to add", out.Items[0].Remarks)
}

func TestAggregateTotalsAndRemarksProperties(t *testing.T) {
	bank := model.QuestionBank{Questions: []model.QuestionNode{
		{ID: "Q1", Text: "one", Marks: 10, SubQuestions: []model.QuestionNode{
			{ID: "Q1a", Text: "one a", Marks: 4},
			{ID: "Q1b", Text: "one b", Marks: 6},
		}},
		{ID: "Q2", Text: "two", Marks: 7},
		{ID: "Q3", Text: "three", Marks: 3, SubQuestions: []model.QuestionNode{
			{ID: "Q3a", Text: "three a", Marks: 2},
		}},
	}}
	grades := map[string]Grade{
		"Q1":  {MarksAwarded: 10},
		"Q1a": {MarksAwarded: 1, Remarks: "vague"},
		"Q1b": {MarksAwarded: 6, Remarks: "ignored"},
		"Q2":  {MarksAwarded: 0},
		"Q3":  {MarksAwarded: 2, Remarks: "incomplete"},
		"Q3a": {MarksAwarded: 2},
	}
	answerSets := []model.AnswerMap{
		{},
		{"Q1": "x", "Q1a": "x", "Q1b": "x", "Q2": "x", "Q3": "x", "Q3a": "x"},
		{"Q1": "x", "Q2": "", "Q3a": "x"},
		{"Q1a": "x", "Q3": "x"},
	}

	for i, answers := range answerSets {
		ev := &fakeEvaluator{grades: grades}
		out, err := NewAggregator(ev).Aggregate(context.Background(), "X", bank, answers)
		require.NoError(t, err, "set %d", i)

		assert.Equal(t, bank.PossibleMarks(), out.TotalMarksPossible, "set %d", i)
		assert.GreaterOrEqual(t, out.Percentage, 0.0)
		assert.LessOrEqual(t, out.Percentage, 100.0)
		assert.Len(t, out.Items, 6, "set %d", i)

		for _, item := range out.Items {
			blank := answers[item.QuestionID] == ""
			g := grades[item.QuestionID]
			want := blank || (g.MarksAwarded < item.TotalMarks && g.Remarks != "")
			_, has := out.Remarks[item.QuestionID]
			assert.Equal(t, want, has, "set %d question %s", i, item.QuestionID)
		}
	}
}

func TestAggregateTraversalOrder(t *testing.T) {
	ev := &fakeEvaluator{}
	bank := model.QuestionBank{Questions: []model.QuestionNode{
		{ID: "Q1", Marks: 1, SubQuestions: []model.QuestionNode{{ID: "Q1a", Marks: 1}, {ID: "Q1b", Marks: 1}}},
		{ID: "Q2", Marks: 1},
	}}

	out, err := NewAggregator(ev).Aggregate(context.Background(), "X", bank,
		model.AnswerMap{"Q1": "a", "Q1a": "a", "Q1b": "a", "Q2": "a"})
	require.NoError(t, err)

	var ids []string
	for _, item := range out.Items {
		ids = append(ids, item.QuestionID)
	}
	assert.Equal(t, []string{"Q1", "Q1a", "Q1b", "Q2"}, ids)
	assert.Equal(t, 100.0, out.Percentage)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 0))
	assert.Equal(t, 0.0, Percentage(3, 0))
	assert.Equal(t, 50.0, Percentage(5, 10))
	assert.InDelta(t, 33.333, Percentage(1, 3), 1e-3)
}
