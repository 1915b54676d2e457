package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pavelanni/grader/internal/extract"
	"github.com/pavelanni/grader/internal/model"
)

func bankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Manage question banks",
	}
	cmd.AddCommand(bankImportCmd(), bankParseCmd(), bankListCmd(), bankShowCmd())
	return cmd
}

func bankImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import question banks from JSON or YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBankImport,
	}
	addDBFlag(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}

func runBankImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		id, created, err := db.ImportQuestionBank(filepath.Base(path), data)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		if !created {
			slog.Info("question bank file unchanged, skipping", "path", path, "bank_id", id)
			continue
		}
		slog.Info("imported question bank", "path", path, "bank_id", id)
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func bankParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Build a question bank from a question paper with the LLM",
		Args:  cobra.ExactArgs(1),
		RunE:  runBankParse,
	}
	f := cmd.Flags()
	f.String("name", "", "Bank name (default: file name)")
	f.String("description", "", "Bank description")
	f.Int("total-marks", 0, "Total marks of the paper (0 = take from the paper)")
	f.String("distribution", string(model.DistributionInPaper), "Mark distribution (in_paper, uniform)")
	f.Int("per-question-marks", 0, "Marks of every top-level question for uniform distribution")
	f.Bool("save", false, "Save the bank to the database")
	f.StringP("output", "o", "-", "Write the bank JSON to this file (- for stdout)")
	addDBFlag(f)
	addLLMFlags(f)
	addLogFlags(f)
	return cmd
}

func runBankParse(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	text, err := extract.New().Extract(cmd.Context(), content, path)
	if err != nil {
		return err
	}

	llmClient, err := newLLMClient(v)
	if err != nil {
		return err
	}
	bank, err := llmClient.ParseQuestionPaper(cmd.Context(), text,
		v.GetInt("total-marks"),
		model.MarkDistribution(v.GetString("distribution")),
		v.GetInt("per-question-marks"))
	if err != nil {
		return fmt.Errorf("parse question paper: %w", err)
	}
	bank.Name = v.GetString("name")
	if bank.Name == "" {
		base := filepath.Base(path)
		bank.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	bank.Description = v.GetString("description")

	if v.GetBool("save") {
		db, err := openStore(v)
		if err != nil {
			return err
		}
		defer db.Close()
		id, err := db.CreateQuestionBank(bank)
		if err != nil {
			return err
		}
		bank.ID = id
		slog.Info("saved question bank", "bank_id", id, "questions", bank.QuestionCount)
	}

	w, closeOut, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeOut()
	return writeJSON(w, bank)
}

func bankListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List question banks",
		Args:  cobra.NoArgs,
		RunE:  runBankList,
	}
	addDBFlag(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}

func runBankList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	banks, err := db.ListQuestionBanks()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQUESTIONS\tMARKS\tDISTRIBUTION\tCREATED")
	for _, b := range banks {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n",
			b.ID, b.Name, b.QuestionCount, b.TotalMarks, b.MarkDistribution, b.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func bankShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print a question bank as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runBankShow,
	}
	addDBFlag(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}

func runBankShow(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid bank id %q", args[0])
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	bank, err := db.QuestionBank(id)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), bank)
}
