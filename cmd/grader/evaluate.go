package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pavelanni/grader/internal/extract"
	"github.com/pavelanni/grader/internal/i18n"
	"github.com/pavelanni/grader/internal/model"
	"github.com/pavelanni/grader/internal/report"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate [flags] FILE|DIR...",
		Short: "Evaluate answer sheets against a question bank",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEvaluate,
	}
	f := cmd.Flags()
	f.Int64P("bank", "b", 0, "Question bank id (required)")
	f.StringP("model", "m", "", "LLM model for this run (default: --llm-model)")
	f.StringP("output", "o", "", "Write JSON results to this file (- for stdout)")
	f.StringP("lang", "l", "en", "Report language (en, ru)")
	addDBFlag(f)
	addLLMFlags(f)
	addBatchFlags(f)
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	docs, err := readDocuments(args, extract.New())
	if err != nil {
		return err
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	bankID := v.GetInt64("bank")
	bank, err := db.QuestionBank(bankID)
	if err != nil {
		return err
	}

	llmClient, err := newLLMClient(v)
	if err != nil {
		return err
	}
	eng, closeEvents, err := newEngine(v, db, llmClient, nil)
	if err != nil {
		return err
	}
	defer closeEvents()

	results, err := eng.EvaluateBatch(cmd.Context(), docs, bankID, v.GetString("model"), v.GetInt("chunk-size"))
	if err != nil {
		return err
	}

	if out := v.GetString("output"); out != "" {
		w, closeOut, err := openOutput(out)
		if err != nil {
			return err
		}
		defer closeOut()
		if err := writeJSON(w, struct {
			Summary report.Summary            `json:"summary"`
			Results []model.EvaluationOutcome `json:"results"`
		}{report.Summarize(report.FromOutcomes(results)), results}); err != nil {
			return err
		}
		if out == "-" {
			return nil
		}
	}

	tr, err := i18n.New(v.GetString("lang"))
	if err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	return report.WriteText(cmd.Context(), cmd.OutOrStdout(), tr, bank.Name, report.FromOutcomes(results))
}

// readDocuments loads the named files. Directories contribute every file
// with a supported extension, in lexical order.
func readDocuments(paths []string, reg *extract.Registry) ([]model.Document, error) {
	var docs []model.Document
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			doc, err := readDocument(p)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", p, err)
		}
		for _, e := range entries {
			if e.IsDir() || !reg.Supported(e.Name()) {
				continue
			}
			doc, err := readDocument(filepath.Join(p, e.Name()))
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	slog.Debug("loaded answer sheets", "count", len(docs))
	return docs, nil
}

func readDocument(path string) (model.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return model.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return model.Document{Filename: filepath.Base(path), Content: content}, nil
}
