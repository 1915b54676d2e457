// Package engine runs answer sheets through extraction, segmentation and
// evaluation, one document at a time or in batches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/grader/internal/evaluate"
	"github.com/pavelanni/grader/internal/extract"
	"github.com/pavelanni/grader/internal/model"
	"github.com/pavelanni/grader/internal/segment"
)

// Defaults for batch processing.
const (
	DefaultChunkSize = 32
	DefaultMaxFiles  = 100
)

var (
	// ErrTooManyFiles is returned when a batch exceeds the configured limit.
	ErrTooManyFiles = errors.New("too many files")
	// ErrInvalidChunkSize is returned for a chunk size below one.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
)

// BankSource looks up question banks by id.
type BankSource interface {
	QuestionBank(id int64) (model.QuestionBank, error)
}

// EvaluatorFactory returns the evaluator for a model name. An empty name
// selects the default model.
type EvaluatorFactory interface {
	ForModel(name string) (evaluate.Evaluator, error)
}

// Recorder persists completed outcomes and returns the new evaluation id.
type Recorder interface {
	SaveEvaluation(bankID int64, fileName string, out model.EvaluationOutcome) (int64, error)
}

// Notifier is told about every finished document. Errors are logged only.
type Notifier interface {
	Notify(ctx context.Context, bankID int64, out model.EvaluationOutcome) error
}

// Observer counts finished documents.
type Observer interface {
	ObserveDocument(status model.Status)
}

// Options holds the optional collaborators and limits of an Engine.
type Options struct {
	Recorder Recorder
	Notifier Notifier
	Observer Observer
	Logger   *slog.Logger
	// MaxFiles caps the documents accepted by EvaluateBatch.
	MaxFiles int
	// Workers is the number of documents evaluated at once within a chunk.
	Workers int
}

// Engine evaluates answer sheets against stored question banks.
type Engine struct {
	extractor  extract.Extractor
	banks      BankSource
	evaluators EvaluatorFactory
	recorder   Recorder
	notifier   Notifier
	observer   Observer
	log        *slog.Logger
	maxFiles   int
	workers    int
}

// New creates an Engine. Zero-valued options fall back to defaults.
func New(ext extract.Extractor, banks BankSource, evaluators EvaluatorFactory, opts Options) *Engine {
	e := &Engine{
		extractor:  ext,
		banks:      banks,
		evaluators: evaluators,
		recorder:   opts.Recorder,
		notifier:   opts.Notifier,
		observer:   opts.Observer,
		log:        opts.Logger,
		maxFiles:   opts.MaxFiles,
		workers:    opts.Workers,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.maxFiles <= 0 {
		e.maxFiles = DefaultMaxFiles
	}
	if e.workers <= 0 {
		e.workers = 1
	}
	return e
}

// EvaluateDocument evaluates a single answer sheet. Every failure is
// reported through a failed outcome that still carries the student name.
func (e *Engine) EvaluateDocument(ctx context.Context, doc model.Document, bankID int64, modelName string) model.EvaluationOutcome {
	return e.document(ctx, e.log, e.prepare(bankID, modelName), doc)
}

// EvaluateBatch evaluates docs against one question bank and returns one
// outcome per document, in input order. Chunks only pace progress
// reporting. A failing document never stops the batch; the returned error
// is non-nil only when the batch itself is rejected.
func (e *Engine) EvaluateBatch(ctx context.Context, docs []model.Document, bankID int64, modelName string, chunkSize int) ([]model.EvaluationOutcome, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	if len(docs) > e.maxFiles {
		return nil, fmt.Errorf("%w: %d exceeds the limit of %d", ErrTooManyFiles, len(docs), e.maxFiles)
	}

	log := e.log.With("run_id", uuid.NewString(), "bank_id", bankID)
	results := make([]model.EvaluationOutcome, len(docs))
	// The bank and evaluator are shared read-only by every document.
	j := e.prepare(bankID, modelName)

	chunks := (len(docs) + chunkSize - 1) / chunkSize
	log.Info("starting batch", "documents", len(docs), "chunk_size", chunkSize, "workers", e.workers)
	for c := 0; c < chunks; c++ {
		start := c * chunkSize
		end := min(start+chunkSize, len(docs))
		log.Info("processing chunk", "chunk", c+1, "chunks", chunks, "documents", end-start)

		if e.workers == 1 {
			for i := start; i < end; i++ {
				results[i] = e.document(ctx, log, j, docs[i])
			}
			continue
		}

		var g errgroup.Group
		g.SetLimit(e.workers)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = e.document(ctx, log, j, docs[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	completed := 0
	for _, r := range results {
		if r.Status == model.StatusCompleted {
			completed++
		}
	}
	log.Info("batch finished", "documents", len(docs), "completed", completed, "failed", len(docs)-completed)
	return results, nil
}

// job is the per-batch state shared by every document.
type job struct {
	bankID  int64
	bank    model.QuestionBank
	bankErr error
	ev      evaluate.Evaluator
	evErr   error
}

func (e *Engine) prepare(bankID int64, modelName string) job {
	j := job{bankID: bankID}
	j.bank, j.bankErr = e.banks.QuestionBank(bankID)
	if j.bankErr != nil {
		j.bankErr = fmt.Errorf("load question bank %d: %w", bankID, j.bankErr)
		return j
	}
	j.ev, j.evErr = e.evaluators.ForModel(modelName)
	if j.evErr != nil {
		j.evErr = fmt.Errorf("select evaluator: %w", j.evErr)
	}
	return j
}

func (e *Engine) document(ctx context.Context, log *slog.Logger, j job, doc model.Document) (out model.EvaluationOutcome) {
	name := segment.StudentName(doc.Filename)

	defer func() {
		if r := recover(); r != nil {
			log.Error("document panicked", "file", doc.Filename, "panic", r, "stack", string(debug.Stack()))
			out = e.finish(ctx, log, j.bankID, doc, model.FailedOutcome(name, fmt.Errorf("internal error: %v", r)))
		}
	}()

	if err := ctx.Err(); err != nil {
		return e.finish(ctx, log, j.bankID, doc, model.FailedOutcome(name, err))
	}
	text, err := e.extractor.Extract(ctx, doc.Content, doc.Filename)
	if err != nil {
		return e.finish(ctx, log, j.bankID, doc, model.FailedOutcome(name, err))
	}
	if j.bankErr != nil {
		return e.finish(ctx, log, j.bankID, doc, model.FailedOutcome(name, j.bankErr))
	}
	if j.evErr != nil {
		return e.finish(ctx, log, j.bankID, doc, model.FailedOutcome(name, j.evErr))
	}
	return e.finish(ctx, log, j.bankID, doc, e.score(ctx, log, name, text, j.bank, j.ev))
}

func (e *Engine) score(ctx context.Context, log *slog.Logger, name, text string, bank model.QuestionBank, ev evaluate.Evaluator) model.EvaluationOutcome {
	answers := segment.Segment(text, bank.QuestionCount)
	out, err := evaluate.NewAggregator(ev).Aggregate(ctx, name, bank, answers)
	if err != nil {
		log.Debug("aggregation aborted", "student", name, "error", err)
	}
	return out
}

// finish persists a completed outcome, then reports it. A failed save turns
// the outcome into a failed one.
func (e *Engine) finish(ctx context.Context, log *slog.Logger, bankID int64, doc model.Document, out model.EvaluationOutcome) model.EvaluationOutcome {
	out.FileName = doc.Filename

	if out.Status == model.StatusCompleted && e.recorder != nil {
		id, err := e.recorder.SaveEvaluation(bankID, doc.Filename, out)
		if err != nil {
			out = model.FailedOutcome(out.StudentName, fmt.Errorf("save evaluation: %w", err))
			out.FileName = doc.Filename
		} else {
			out.EvaluationID = id
		}
	}

	if out.Status == model.StatusFailed {
		log.Warn("document failed", "file", doc.Filename, "student", out.StudentName, "error", out.Error)
	} else {
		log.Debug("document evaluated", "file", doc.Filename, "student", out.StudentName,
			"obtained", out.TotalMarksObtained, "possible", out.TotalMarksPossible)
	}

	if e.observer != nil {
		e.observer.ObserveDocument(out.Status)
	}
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, bankID, out); err != nil {
			log.Warn("notify failed", "file", doc.Filename, "error", err)
		}
	}
	return out
}
