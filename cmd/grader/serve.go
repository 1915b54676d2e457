package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/grader/internal/engine"
	"github.com/pavelanni/grader/internal/events"
	"github.com/pavelanni/grader/internal/extract"
	"github.com/pavelanni/grader/internal/handler"
	"github.com/pavelanni/grader/internal/i18n"
	"github.com/pavelanni/grader/internal/metrics"
	"github.com/pavelanni/grader/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("lang", "l", "en", "Default report language (en, ru)")
	f.Bool("skip-llm-check", false, "Start without checking the LLM endpoint")
	addDBFlag(f)
	addLLMFlags(f)
	addBatchFlags(f)
	addLogFlags(f)
	return cmd
}

// newEngine wires the evaluation engine. The returned cleanup closes the
// event publisher, if one was opened.
func newEngine(v *viper.Viper, db *store.Store, factory engine.EvaluatorFactory, observer engine.Observer) (*engine.Engine, func(), error) {
	opts := engine.Options{
		Recorder: db,
		Observer: observer,
		MaxFiles: v.GetInt("max-files"),
		Workers:  v.GetInt("workers"),
	}
	cleanup := func() {}

	if url := v.GetString("amqp-url"); url != "" {
		pub, err := events.NewPublisher(url, v.GetString("amqp-exchange"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect event broker: %w", err)
		}
		opts.Notifier = pub
		cleanup = func() {
			if err := pub.Close(); err != nil {
				slog.Warn("close event publisher", "error", err)
			}
		}
		slog.Info("publishing evaluation events", "exchange", v.GetString("amqp-exchange"))
	}

	return engine.New(extract.New(), db, factory, opts), cleanup, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	tr, err := i18n.New(lang)
	if err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient, err := newLLMClient(v)
	if err != nil {
		return err
	}
	if !v.GetBool("skip-llm-check") {
		if err := llmClient.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", llmClient.Model())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	eng, closeEvents, err := newEngine(v, db, m.Factory(llmClient), m)
	if err != nil {
		return err
	}
	defer closeEvents()

	h := handler.New(db, eng, tr, handler.Config{
		MaxFiles:  v.GetInt("max-files"),
		ChunkSize: v.GetInt("chunk-size"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(tr.Middleware())
	r.Handle("/metrics", m.Handler())
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"model", llmClient.Model(),
			"llm_url", v.GetString("llm-url"),
			"lang", lang,
			"chunk_size", v.GetInt("chunk-size"),
			"workers", v.GetInt("workers"),
			"max_files", v.GetInt("max-files"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
