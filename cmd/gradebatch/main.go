package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/aigrader/aigrader/constants"
	"github.com/aigrader/aigrader/internal/common"
	"github.com/aigrader/aigrader/internal/entity"
	"github.com/aigrader/aigrader/internal/export"
	"github.com/aigrader/aigrader/internal/llm/openai"
	"github.com/aigrader/aigrader/internal/repository"
	"github.com/aigrader/aigrader/internal/worker"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	// Parse CLI flags
	var (
		assignmentStr = flag.String("assignment", "", "assignment id to grade (required)")
		rubricStr     = flag.String("rubric", "", "rubric id (optional)")
		skipGraded    = flag.Bool("skip-graded", false, "skip submissions that already have a grade")
		out           = flag.String("out", "", "write an XLSX gradebook to this path after grading")
	)
	flag.Parse()

	if *assignmentStr == "" {
		printError("Error: --assignment is required\n")
		os.Exit(1)
	}
	assignmentID, err := uuid.Parse(*assignmentStr)
	if err != nil {
		printError("Error: invalid --assignment id: %v\n", err)
		os.Exit(1)
	}
	var rubricID *uuid.UUID
	if *rubricStr != "" {
		id, err := uuid.Parse(*rubricStr)
		if err != nil {
			printError("Error: invalid --rubric id: %v\n", err)
			os.Exit(1)
		}
		rubricID = &id
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	_ = godotenv.Load()
	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	// Database
	db, pool, err := repository.Open(ctx, repository.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)

	if err := repository.Migrate(ctx, db, logger); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// Wire repositories
	jobsRepo := repository.NewGradingJobRepository(db, logger)
	subsRepo := repository.NewSubmissionRepository(db, logger)
	rubricsRepo := repository.NewRubricRepository(db, logger)

	subs, err := subsRepo.ListByAssignment(ctx, assignmentID)
	if err != nil {
		logger.Error("listing submissions failed", "assignment_id", assignmentID, "error", err)
		os.Exit(1)
	}
	if len(subs) == 0 {
		printError("Error: assignment %s has no submissions\n", assignmentID)
		os.Exit(1)
	}
	ids := make([]uuid.UUID, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}

	gateway := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	w := worker.New(jobsRepo, subsRepo, rubricsRepo, gateway, logger)

	// One-shot: create the job record and run the batch inline.
	job := &entity.GradingJob{
		ID:             uuid.New(),
		AssignmentID:   assignmentID,
		Status:         constants.JobStatusQueued,
		Total:          len(ids),
		CurrentMessage: "Waiting for a grading worker",
	}
	if err := jobsRepo.Create(ctx, job); err != nil {
		logger.Error("creating job failed", "error", err)
		os.Exit(1)
	}

	logger.Info("starting batch grading", "job_id", job.ID, "submissions", len(ids))
	w.Run(ctx, worker.Params{
		JobID:         job.ID,
		SubmissionIDs: ids,
		RubricID:      rubricID,
		SkipGraded:    *skipGraded,
	})

	final, err := jobsRepo.Get(ctx, job.ID)
	if err != nil {
		logger.Error("reading job result failed", "error", err)
		os.Exit(1)
	}

	var graded, skipped, failures int
	for _, o := range final.Results {
		switch o.Status {
		case constants.OutcomeSuccess:
			graded++
		case constants.OutcomeSkipped:
			skipped++
		case constants.OutcomeError:
			failures++
		}
	}

	if *out != "" {
		exportService := export.NewService(subsRepo, logger)
		xlsxBytes, err := exportService.GradebookXLSX(ctx, assignmentID)
		if err != nil {
			logger.Error("gradebook export failed", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, xlsxBytes, 0644); err != nil {
			logger.Error("writing gradebook failed", "error", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Batch grading %s\n", final.Status)
	fmt.Printf("- Submissions: %d\n", final.Total)
	fmt.Printf("- Graded: %d\n", graded)
	fmt.Printf("- Skipped: %d\n", skipped)
	fmt.Printf("- Failures: %d\n", failures)
	if final.ErrorMessage != "" {
		fmt.Printf("- Error: %s\n", final.ErrorMessage)
	}
	if *out != "" {
		fmt.Printf("- Gradebook: %s\n", *out)
	}
	if final.Status == constants.JobStatusFailed {
		os.Exit(1)
	}
}
