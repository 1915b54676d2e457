// Package segment splits the plain text of an answer sheet into answers
// keyed by question number.
package segment

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/grader/internal/model"
)

// answerPatterns are tried in order against the start of each line; the
// first match wins. Each captures the question number.
var answerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(\d+)[.)]\s*`),            // 1. or 1)
	regexp.MustCompile(`(?i)^Q(\d+)[.)]\s*`),           // Q1. or Q1)
	regexp.MustCompile(`(?i)^Question\s*(\d+)[.)]\s*`), // Question 1. or Question 1)
	regexp.MustCompile(`(?i)^Ans[.\s]*(\d+)[.)]\s*`),   // Ans. 1) or Ans 1.
}

// Span is an answer found in the document, in first-seen order.
type Span struct {
	Key string // "Q<n>"
	// Number is 0 when the captured number does not fit an int, and also
	// for a literal "0." prefix. Both are out of range, so FillGaps treats
	// their text as leftover content for missing keys.
	Number int
	Text   string
}

// Segment maps the answer sheet text onto exactly expected keys Q1..Qn.
// Keys that no line prefix claimed are filled by FillGaps.
func Segment(text string, expected int) model.AnswerMap {
	return FillGaps(Split(text), expected)
}

// Split scans text line by line and returns the answers opened by a
// numbered line prefix. Lines before the first numbered line are dropped.
// An answer with no content is not returned, and a number that appears
// again replaces the earlier text while keeping its original position.
func Split(text string) []Span {
	var (
		spans   []Span
		index   = make(map[string]int)
		current *Span
		content []string
	)

	flush := func() {
		if current == nil || len(content) == 0 {
			return
		}
		current.Text = strings.TrimSpace(strings.Join(content, "\n"))
		if i, ok := index[current.Key]; ok {
			spans[i].Text = current.Text
			return
		}
		index[current.Key] = len(spans)
		spans = append(spans, *current)
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, number, rest, ok := matchAnswerStart(line)
		if !ok {
			if current != nil {
				content = append(content, line)
			}
			continue
		}

		flush()
		current = &Span{Key: key, Number: number}
		content = nil
		if rest != "" {
			content = append(content, rest)
		}
	}
	flush()

	return spans
}

func matchAnswerStart(line string) (key string, number int, rest string, ok bool) {
	for _, re := range answerPatterns {
		m := re.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		digits := line[m[2]:m[3]]
		rest = strings.TrimSpace(line[m[1]:])
		n, err := strconv.Atoi(digits)
		if err != nil {
			return "Q" + digits, 0, rest, true
		}
		return model.QuestionKey(n), n, rest, true
	}
	return "", 0, "", false
}

// FillGaps returns a map with exactly the keys Q1..Q<expected>. Spans whose
// number is in range keep their text. Every missing key then takes the first
// span text, in document order, that no key holds yet, or the empty string
// when nothing is left. Text can end up under the wrong question when the
// sheet's numbering drifts; full key coverage is preferred over alignment.
func FillGaps(spans []Span, expected int) model.AnswerMap {
	answers := make(model.AnswerMap, max(expected, 0))
	assigned := make(map[string]bool)

	for _, s := range spans {
		if s.Number >= 1 && s.Number <= expected {
			answers[s.Key] = s.Text
			assigned[s.Text] = true
		}
	}

	for i := 1; i <= expected; i++ {
		key := model.QuestionKey(i)
		if _, ok := answers[key]; ok {
			continue
		}
		answers[key] = ""
		for _, s := range spans {
			if !assigned[s.Text] {
				answers[key] = s.Text
				assigned[s.Text] = true
				break
			}
		}
	}

	return answers
}
