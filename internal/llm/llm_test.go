package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/grader/internal/evaluate"
	"github.com/pavelanni/grader/internal/llm/prompts"
	"github.com/pavelanni/grader/internal/model"
)

// fakeAPI serves canned chat completions and records the requests.
type fakeAPI struct {
	mu       sync.Mutex
	content  string
	status   int
	requests []map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/models":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"test-model","object":"model"}]}`)
		return
	case "/chat/completions":
	default:
		http.NotFound(w, r)
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.requests = append(f.requests, body)
	content, status := f.content, f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":{"message":"upstream overloaded","type":"server_error"}}`)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  body["model"],
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	set, err := prompts.Default()
	if err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	return New(Config{BaseURL: srv.URL, APIKey: "test", Model: "test-model", Temperature: 0.3}, set)
}

func evalRequest() evaluate.Request {
	return evaluate.Request{
		QuestionID:   "Q1",
		QuestionText: "What is a goroutine?",
		ModelAnswer:  "A lightweight thread managed by the Go runtime.",
		Answer:       "A cheap thread.",
		Marks:        10,
		Type:         model.TypeDefine,
	}
}

func TestEvaluate(t *testing.T) {
	api := &fakeAPI{content: `{"marks_awarded": 6, "total_marks": 10, "percentage": 60, "justification": " Partly right. ", "remarks": "Does not mention the runtime."}`}
	c := newTestClient(t, api)

	grade, err := c.Evaluate(context.Background(), evalRequest())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if grade.MarksAwarded != 6 {
		t.Errorf("MarksAwarded = %d, want 6", grade.MarksAwarded)
	}
	if grade.Justification != "Partly right." {
		t.Errorf("Justification = %q", grade.Justification)
	}
	if grade.Remarks != "Does not mention the runtime." {
		t.Errorf("Remarks = %q", grade.Remarks)
	}

	if len(api.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(api.requests))
	}
	req := api.requests[0]
	if req["model"] != "test-model" {
		t.Errorf("model = %v", req["model"])
	}
	format, _ := req["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", req["response_format"])
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	user, _ := msgs[1].(map[string]any)
	if content, _ := user["content"].(string); !strings.Contains(content, "A cheap thread.") {
		t.Error("user prompt should carry the student answer")
	}
}

func TestEvaluateRoundsFractionalMarks(t *testing.T) {
	api := &fakeAPI{content: "```json\n{\"marks_awarded\": 7.5, \"justification\": \"ok\"}\n```"}
	c := newTestClient(t, api)

	grade, err := c.Evaluate(context.Background(), evalRequest())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if grade.MarksAwarded != 8 {
		t.Errorf("MarksAwarded = %d, want 8", grade.MarksAwarded)
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name    string
		api     *fakeAPI
		wantErr string
	}{
		{"malformed json", &fakeAPI{content: "six out of ten"}, "parse LLM response"},
		{"too many marks", &fakeAPI{content: `{"marks_awarded": 11}`}, "want 0..10"},
		{"negative marks", &fakeAPI{content: `{"marks_awarded": -2}`}, "want 0..10"},
		{"server error", &fakeAPI{status: http.StatusInternalServerError}, "LLM API call"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.api)
			_, err := c.Evaluate(context.Background(), evalRequest())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestEvaluateThroughAggregator(t *testing.T) {
	api := &fakeAPI{content: `{"marks_awarded": 3, "justification": "vague", "remarks": "too short"}`}
	c := newTestClient(t, api)

	bank := model.QuestionBank{Questions: []model.QuestionNode{
		{ID: "Q1", Text: "one", Type: model.TypeShort, Marks: 5},
		{ID: "Q2", Text: "two", Type: model.TypeShort, Marks: 5},
	}}
	out, err := evaluate.NewAggregator(c).Aggregate(context.Background(), "Jane Doe", bank, model.AnswerMap{"Q1": "an answer"})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if out.TotalMarksObtained != 3 || out.TotalMarksPossible != 10 {
		t.Errorf("totals = %d/%d, want 3/10", out.TotalMarksObtained, out.TotalMarksPossible)
	}
	if len(api.requests) != 1 {
		t.Errorf("requests = %d, want 1 (blank answers are not sent)", len(api.requests))
	}

	api.status = http.StatusBadGateway
	_, err = evaluate.NewAggregator(c).Aggregate(context.Background(), "Jane Doe", bank, model.AnswerMap{"Q1": "a", "Q2": "b"})
	if !errors.Is(err, evaluate.ErrEvaluator) {
		t.Errorf("error = %v, want ErrEvaluator", err)
	}
}

func TestForModel(t *testing.T) {
	api := &fakeAPI{content: `{"marks_awarded": 1}`}
	c := newTestClient(t, api)

	same, err := c.ForModel("")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	if same != evaluate.Evaluator(c) {
		t.Error("empty model name should return the default client")
	}

	other, err := c.ForModel("other-model")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	if _, err := other.Evaluate(context.Background(), evalRequest()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if api.requests[0]["model"] != "other-model" {
		t.Errorf("model = %v, want other-model", api.requests[0]["model"])
	}
	if c.Model() != "test-model" {
		t.Error("ForModel must not change the original client")
	}
}

func TestParseQuestionPaper(t *testing.T) {
	api := &fakeAPI{content: `{
		"questions": [
			{"id": "Q1", "text": "Define velocity", "type": "define", "marks": 5,
			 "sub_questions": [{"id": "Q1a", "text": "Give its unit", "type": "short", "marks": 1}]},
			{"id": "Q2", "text": "Explain inertia", "type": "Explain", "marks": 5}
		],
		"total_marks": 10,
		"question_count": 2
	}`}
	c := newTestClient(t, api)

	bank, err := c.ParseQuestionPaper(context.Background(), "1. Define velocity (5)\n2. Explain inertia (5)", 10, "", 0)
	if err != nil {
		t.Fatalf("ParseQuestionPaper: %v", err)
	}
	if bank.QuestionCount != 2 || bank.TotalMarks != 10 {
		t.Errorf("count/total = %d/%d, want 2/10", bank.QuestionCount, bank.TotalMarks)
	}
	if bank.MarkDistribution != model.DistributionInPaper {
		t.Errorf("distribution = %q", bank.MarkDistribution)
	}
	if bank.Questions[1].Type != model.TypeExplain {
		t.Errorf("type = %q, want explain", bank.Questions[1].Type)
	}
	if len(bank.Questions[0].SubQuestions) != 1 {
		t.Errorf("sub-questions = %d, want 1", len(bank.Questions[0].SubQuestions))
	}
}

func TestParseQuestionPaperUniform(t *testing.T) {
	api := &fakeAPI{content: `{"questions": [{"id": "Q1", "text": "a", "marks": 3}, {"id": "Q2", "text": "b", "marks": 7}], "question_count": 2}`}
	c := newTestClient(t, api)

	bank, err := c.ParseQuestionPaper(context.Background(), "1. a\n2. b", 20, model.DistributionUniform, 10)
	if err != nil {
		t.Fatalf("ParseQuestionPaper: %v", err)
	}
	for _, q := range bank.Questions {
		if q.Marks != 10 {
			t.Errorf("%s marks = %d, want 10", q.ID, q.Marks)
		}
	}
}

func TestParseQuestionPaperInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		text    string
	}{
		{"empty paper", `{}`, "  "},
		{"not json", "I could not find questions", "1. a"},
		{"no questions", `{"questions": [], "question_count": 0}`, "1. a"},
		{"count mismatch", `{"questions": [{"id": "Q1", "text": "a", "marks": 2}], "question_count": 3}`, "1. a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeAPI{content: tt.content})
			if _, err := c.ParseQuestionPaper(context.Background(), tt.text, 10, model.DistributionInPaper, 0); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestTrimCodeFence(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}\n":           `{"a":1}`,
	}
	for in, want := range tests {
		if got := trimCodeFence(in); got != want {
			t.Errorf("trimCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
