package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/grader/internal/evaluate"
	"github.com/pavelanni/grader/internal/llm/prompts"
	"github.com/pavelanni/grader/internal/model"
)

const (
	systemEvaluator = "You are an expert academic evaluator. You grade one answer at a time and reply with JSON only."
	systemParser    = "You are an expert at parsing academic question papers. You reply with JSON only."
)

// GradeResult is the JSON object the model returns for one answer.
type GradeResult struct {
	MarksAwarded  float64 `json:"marks_awarded"`
	TotalMarks    int     `json:"total_marks"`
	Percentage    float64 `json:"percentage"`
	Justification string  `json:"justification"`
	Remarks       string  `json:"remarks"`
}

// PaperResult is the JSON object the model returns for a question paper.
type PaperResult struct {
	Questions     []model.QuestionNode `json:"questions"`
	TotalMarks    int                  `json:"total_marks"`
	QuestionCount int                  `json:"question_count"`
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Variant     prompts.PromptVariant
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Client wraps an OpenAI-compatible API client. It is safe for concurrent use.
type Client struct {
	api         *openai.Client
	prompts     *prompts.Set
	model       string
	variant     prompts.PromptVariant
	temperature float32
	maxTokens   int
}

// New creates a new LLM client.
func New(cfg Config, set *prompts.Set) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	variant := cfg.Variant
	if variant == "" {
		variant = prompts.PromptStandard
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		prompts:     set,
		model:       cfg.Model,
		variant:     variant,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Model returns the model name used for completions.
func (c *Client) Model() string {
	return c.model
}

// WithModel returns a copy of the client that uses the named model.
func (c *Client) WithModel(name string) *Client {
	cp := *c
	cp.model = name
	return &cp
}

// ForModel returns an evaluator for the named model, or for the default
// model when name is empty.
func (c *Client) ForModel(name string) (evaluate.Evaluator, error) {
	if name == "" || name == c.model {
		return c, nil
	}
	return c.WithModel(name), nil
}

// Ping checks that the API is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM API ping: %w", err)
	}
	return nil
}

// Evaluate grades a single answer.
func (c *Client) Evaluate(ctx context.Context, req evaluate.Request) (evaluate.Grade, error) {
	prompt, err := c.prompts.BuildEvalPrompt(c.variant, prompts.EvalData{
		QuestionID:   req.QuestionID,
		QuestionText: req.QuestionText,
		Type:         string(req.Type),
		Marks:        req.Marks,
		ModelAnswer:  req.ModelAnswer,
		Answer:       req.Answer,
	})
	if err != nil {
		return evaluate.Grade{}, err
	}

	raw, err := c.complete(ctx, systemEvaluator, prompt)
	if err != nil {
		return evaluate.Grade{}, err
	}
	slog.Debug("LLM response", "question_id", req.QuestionID, "raw", raw)

	var result GradeResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return evaluate.Grade{}, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}

	marks := int(math.Round(result.MarksAwarded))
	if marks < 0 || marks > req.Marks {
		return evaluate.Grade{}, fmt.Errorf("LLM awarded %v marks, want 0..%d", result.MarksAwarded, req.Marks)
	}

	return evaluate.Grade{
		MarksAwarded:  marks,
		Justification: strings.TrimSpace(result.Justification),
		Remarks:       strings.TrimSpace(result.Remarks),
	}, nil
}

// ParseQuestionPaper asks the model to turn question paper text into a
// question bank. The bank is validated before it is returned.
func (c *Client) ParseQuestionPaper(ctx context.Context, text string, totalMarks int, dist model.MarkDistribution, perQuestionMarks int) (model.QuestionBank, error) {
	if strings.TrimSpace(text) == "" {
		return model.QuestionBank{}, errors.New("question paper is empty")
	}
	if dist == "" {
		dist = model.DistributionInPaper
	}

	prompt, err := c.prompts.BuildPaperPrompt(prompts.PaperData{
		Text:             text,
		TotalMarks:       totalMarks,
		Distribution:     string(dist),
		PerQuestionMarks: perQuestionMarks,
	})
	if err != nil {
		return model.QuestionBank{}, err
	}

	raw, err := c.complete(ctx, systemParser, prompt)
	if err != nil {
		return model.QuestionBank{}, err
	}
	slog.Debug("LLM paper response", "raw", raw)

	var result PaperResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return model.QuestionBank{}, fmt.Errorf("parse question paper response: %w (raw: %s)", err, raw)
	}

	bank := model.QuestionBank{
		TotalMarks:       totalMarks,
		MarkDistribution: dist,
		QuestionCount:    result.QuestionCount,
		Questions:        result.Questions,
	}
	if dist == model.DistributionUniform {
		bank.PerQuestionMarks = perQuestionMarks
	}
	if bank.TotalMarks == 0 {
		bank.TotalMarks = result.TotalMarks
	}
	if err := bank.Validate(); err != nil {
		return model.QuestionBank{}, err
	}
	return bank, nil
}

func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}
	return trimCodeFence(resp.Choices[0].Message.Content), nil
}

// trimCodeFence removes a markdown code fence some servers wrap JSON in.
func trimCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
