// Package report summarizes evaluation outcomes and renders them as
// localized plain text.
package report

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pavelanni/grader/internal/i18n"
	"github.com/pavelanni/grader/internal/model"
)

// PassPercentage is the lowest percentage counted as a pass.
const PassPercentage = 50.0

// Grades lists letter grades from best to worst.
var Grades = []string{"A+", "A", "A-", "B+", "B", "B-", "C+", "C", "C-", "D", "F"}

var gradeFloors = []float64{90, 85, 80, 75, 70, 65, 60, 55, 50, 45}

// LetterGrade maps a percentage to a letter grade.
func LetterGrade(pct float64) string {
	for i, floor := range gradeFloors {
		if pct >= floor {
			return Grades[i]
		}
	}
	return "F"
}

// FormatMarks renders marks as "obtained/possible (pct%)".
func FormatMarks(obtained, possible int) string {
	pct := 0.0
	if possible > 0 {
		pct = float64(obtained) / float64(possible) * 100
	}
	return fmt.Sprintf("%.1f/%.1f (%.1f%%)", float64(obtained), float64(possible), pct)
}

// Row is one line of a report.
type Row struct {
	StudentName string       `json:"student_name"`
	Obtained    int          `json:"total_marks_obtained"`
	Possible    int          `json:"total_marks_possible"`
	Percentage  float64      `json:"percentage"`
	Status      model.Status `json:"status"`
}

// FromOutcomes converts batch outcomes into report rows.
func FromOutcomes(outs []model.EvaluationOutcome) []Row {
	rows := make([]Row, 0, len(outs))
	for _, o := range outs {
		rows = append(rows, Row{
			StudentName: o.StudentName,
			Obtained:    o.TotalMarksObtained,
			Possible:    o.TotalMarksPossible,
			Percentage:  o.Percentage,
			Status:      o.Status,
		})
	}
	return rows
}

// FromRecords converts stored evaluations into report rows.
func FromRecords(recs []model.EvaluationRecord) []Row {
	rows := make([]Row, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, Row{
			StudentName: r.StudentName,
			Obtained:    r.TotalMarksObtained,
			Possible:    r.TotalMarksPossible,
			Percentage:  r.Percentage,
			Status:      r.Status,
		})
	}
	return rows
}

// Summary aggregates a set of rows. Score fields only consider completed
// rows and are zero when there are none.
type Summary struct {
	Total             int            `json:"total"`
	Completed         int            `json:"completed"`
	Failed            int            `json:"failed"`
	AverageScore      float64        `json:"average_score"`
	HighestScore      float64        `json:"highest_score"`
	LowestScore       float64        `json:"lowest_score"`
	PassRate          float64        `json:"pass_rate"`
	GradeDistribution map[string]int `json:"grade_distribution"`
}

// Summarize computes the summary of rows.
func Summarize(rows []Row) Summary {
	s := Summary{
		Total:             len(rows),
		GradeDistribution: make(map[string]int),
	}

	var sum float64
	passed := 0
	for _, r := range rows {
		switch r.Status {
		case model.StatusCompleted:
		case model.StatusFailed:
			s.Failed++
			continue
		default:
			continue
		}
		if s.Completed == 0 || r.Percentage > s.HighestScore {
			s.HighestScore = r.Percentage
		}
		if s.Completed == 0 || r.Percentage < s.LowestScore {
			s.LowestScore = r.Percentage
		}
		s.Completed++
		sum += r.Percentage
		if r.Percentage >= PassPercentage {
			passed++
		}
		s.GradeDistribution[LetterGrade(r.Percentage)]++
	}

	if s.Completed > 0 {
		s.AverageScore = sum / float64(s.Completed)
		s.PassRate = float64(passed) / float64(s.Completed) * 100
	}
	return s
}

// WriteText writes a localized plain text report. The language comes from
// the localizer stored in ctx.
func WriteText(ctx context.Context, w io.Writer, tr *i18n.Translator, bankName string, rows []Row) error {
	s := Summarize(rows)
	pct := func(v float64) map[string]any { return map[string]any{"Value": fmt.Sprintf("%.1f%%", v)} }
	count := func(n int) map[string]any { return map[string]any{"Count": n} }

	lines := []string{tr.T(ctx, "ReportTitle")}
	if bankName != "" {
		lines = append(lines, tr.Td(ctx, "ReportBank", map[string]any{"Name": bankName}))
	}
	lines = append(lines, tr.Tp(ctx, "ReportSheets", s.Total), "")
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	if s.Total == 0 {
		_, err := fmt.Fprintln(w, tr.T(ctx, "ReportEmpty"))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
		tr.T(ctx, "ReportStudent"), tr.T(ctx, "ReportMarks"), tr.T(ctx, "ReportGrade"), tr.T(ctx, "ReportStatus"))
	for _, r := range rows {
		marks, grade := "-", "-"
		if r.Status == model.StatusCompleted {
			marks = FormatMarks(r.Obtained, r.Possible)
			grade = LetterGrade(r.Percentage)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.StudentName, marks, grade, statusLabel(ctx, tr, r.Status))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, tr.Td(ctx, "ReportCompleted", count(s.Completed)))
	fmt.Fprintln(w, tr.Td(ctx, "ReportFailed", count(s.Failed)))
	if s.Completed == 0 {
		return nil
	}
	fmt.Fprintln(w, tr.Td(ctx, "ReportAverage", pct(s.AverageScore)))
	fmt.Fprintln(w, tr.Td(ctx, "ReportHighest", pct(s.HighestScore)))
	fmt.Fprintln(w, tr.Td(ctx, "ReportLowest", pct(s.LowestScore)))
	fmt.Fprintln(w, tr.Td(ctx, "ReportPassRate", pct(s.PassRate)))

	fmt.Fprintln(w)
	fmt.Fprintln(w, tr.T(ctx, "ReportGrades"))
	for _, g := range Grades {
		if n := s.GradeDistribution[g]; n > 0 {
			if _, err := fmt.Fprintf(w, "  %-2s  %d\n", g, n); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
		}
	}
	return nil
}

func statusLabel(ctx context.Context, tr *i18n.Translator, s model.Status) string {
	switch s {
	case model.StatusCompleted:
		return tr.T(ctx, "StatusCompleted")
	case model.StatusFailed:
		return tr.T(ctx, "StatusFailed")
	default:
		return tr.T(ctx, "StatusPending")
	}
}
