package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

const maxAnswerRunes = 10000

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
	questionPaperRegex      = regexp.MustCompile(`(?i)</?\s*question-paper\b[^>]*>`)
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict is a strict grading variant for core subjects.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is a lenient grading variant for electives.
	PromptLenient PromptVariant = "lenient"
)

var variants = []PromptVariant{PromptStrict, PromptStandard, PromptLenient}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range variants {
		if PromptVariant(v) == known {
			return true
		}
	}
	return false
}

// EvalData holds template data for evaluation prompts.
type EvalData struct {
	QuestionID   string
	QuestionText string
	Type         string
	Marks        int
	ModelAnswer  string
	Answer       string
}

// PaperData holds template data for question paper parsing prompts.
type PaperData struct {
	Text             string
	TotalMarks       int
	Distribution     string
	PerQuestionMarks int
}

// Set is a loaded collection of prompt templates.
type Set struct {
	eval  map[PromptVariant]*template.Template
	paper *template.Template
}

// Default loads the templates compiled into the binary.
func Default() (*Set, error) {
	return Load(templateFS)
}

// Load reads templates/eval_<variant>.txt for every variant and
// templates/parse_paper.txt from fsys.
func Load(fsys fs.FS) (*Set, error) {
	s := &Set{eval: make(map[PromptVariant]*template.Template)}
	for _, v := range variants {
		t, err := parseFile(fsys, "templates/eval_"+string(v)+".txt")
		if err != nil {
			return nil, err
		}
		s.eval[v] = t
	}
	t, err := parseFile(fsys, "templates/parse_paper.txt")
	if err != nil {
		return nil, err
	}
	s.paper = t
	return s, nil
}

func parseFile(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	t, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return t, nil
}

// BuildEvalPrompt renders the evaluation prompt of the given variant. The
// answer is sanitized before it is placed in the prompt.
func (s *Set) BuildEvalPrompt(variant PromptVariant, data EvalData) (string, error) {
	tmpl, ok := s.eval[variant]
	if !ok {
		return "", fmt.Errorf("invalid prompt variant: %q", variant)
	}
	data.Answer = sanitizeAnswer(data.Answer)
	return execute(tmpl, data)
}

// BuildPaperPrompt renders the question paper parsing prompt.
func (s *Set) BuildPaperPrompt(data PaperData) (string, error) {
	data.Text = strings.TrimSpace(questionPaperRegex.ReplaceAllString(data.Text, ""))
	return execute(s.paper, data)
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
