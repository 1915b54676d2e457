package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pavelanni/grader/internal/i18n"
	"github.com/pavelanni/grader/internal/model"
	"github.com/pavelanni/grader/internal/report"
)

func resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "List stored evaluations",
		Args:  cobra.NoArgs,
		RunE:  runResults,
	}
	f := cmd.Flags()
	f.StringP("student", "s", "", "Only evaluations whose student name contains this text")
	f.Int64P("bank", "b", 0, "Only evaluations of this question bank")
	f.Bool("json", false, "Print full records as JSON")
	addDBFlag(f)
	addLogFlags(f)
	return cmd
}

func runResults(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	var recs []model.EvaluationRecord
	if student := v.GetString("student"); student != "" {
		recs, err = db.SearchEvaluations(student)
	} else {
		recs, err = db.ListEvaluations(v.GetInt64("bank"))
	}
	if err != nil {
		return err
	}
	if bankID := v.GetInt64("bank"); bankID != 0 && v.GetString("student") != "" {
		filtered := recs[:0]
		for _, r := range recs {
			if r.QuestionBankID == bankID {
				filtered = append(filtered, r)
			}
		}
		recs = filtered
	}

	if v.GetBool("json") {
		return writeJSON(cmd.OutOrStdout(), recs)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTUDENT\tBANK\tFILE\tMARKS\tGRADE\tDATE")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StudentName, r.QuestionBankName, r.FileName,
			report.FormatMarks(r.TotalMarksObtained, r.TotalMarksPossible),
			report.LetterGrade(r.Percentage),
			r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a summary report of stored evaluations",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
	f := cmd.Flags()
	f.Int64P("bank", "b", 0, "Only evaluations of this question bank")
	f.StringP("lang", "l", "en", "Report language (en, ru)")
	f.Bool("json", false, "Print the summary as JSON")
	addDBFlag(f)
	addLogFlags(f)
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	bankID := v.GetInt64("bank")
	var bankName string
	if bankID != 0 {
		bank, err := db.QuestionBank(bankID)
		if err != nil {
			return err
		}
		bankName = bank.Name
	}

	recs, err := db.ListEvaluations(bankID)
	if err != nil {
		return err
	}
	rows := report.FromRecords(recs)

	if v.GetBool("json") {
		return writeJSON(cmd.OutOrStdout(), report.Summarize(rows))
	}

	tr, err := i18n.New(v.GetString("lang"))
	if err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	return report.WriteText(cmd.Context(), cmd.OutOrStdout(), tr, bankName, rows)
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export evaluations as JSON",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.Int64P("bank", "b", 0, "Only evaluations of this question bank")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addDBFlag(f)
	addLogFlags(f)
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.ExportEvaluations(v.GetInt64("bank"))
	if err != nil {
		return fmt.Errorf("export evaluations: %w", err)
	}

	w, closeOut, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeOut()
	return writeJSON(w, export)
}
