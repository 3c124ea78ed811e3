package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aigrader/aigrader/internal/async"
	"github.com/aigrader/aigrader/internal/common"
	"github.com/aigrader/aigrader/internal/export"
	"github.com/aigrader/aigrader/internal/llm/openai"
	"github.com/aigrader/aigrader/internal/repository"
	"github.com/aigrader/aigrader/internal/scheduler"
	"github.com/aigrader/aigrader/internal/server"
	"github.com/aigrader/aigrader/internal/worker"
)

func main() {
	// Logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// Env
	_ = godotenv.Load()
	cfg, err := common.LoadConfig()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("config invalid", "error", err)
		os.Exit(1)
	}

	// Context with signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, pool, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, log)
	if err != nil {
		log.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, log)

	if err := repository.HealthCheck(ctx, db, cfg.Database.DialTimeout, log); err != nil {
		log.Error("database health failed", "error", err)
		os.Exit(1)
	}
	if err := repository.Migrate(ctx, db, log); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	jobs := repository.NewGradingJobRepository(db, log)
	subs := repository.NewSubmissionRepository(db, log)
	rubrics := repository.NewRubricRepository(db, log)

	// Grading pipeline
	gateway := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, log)
	w := worker.New(jobs, subs, rubrics, gateway, log)
	queue := async.NewGradingQueue(w, log,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithJobTimeout(cfg.Queue.JobTimeout),
	)
	sched := scheduler.New(jobs, queue, log)

	// HTTP API
	router := server.NewRouter(server.RouterConfig{
		Scheduler:   sched,
		Grader:      worker.NewGrader(gateway, log),
		Submissions: subs,
		Rubrics:     rubrics,
		Export:      export.NewService(subs, log),
		Logger:      log,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http serving", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	// Let in-flight batches finish before the DB closes.
	queue.Shutdown(shutdownCtx)
	log.Info("stopped")
}
