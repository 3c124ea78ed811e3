package scheduler

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/aigrader/aigrader/constants"
	"github.com/aigrader/aigrader/internal/async"
	"github.com/aigrader/aigrader/internal/common"
	"github.com/aigrader/aigrader/internal/entity"
	"github.com/aigrader/aigrader/internal/repository"
)

// SubmitRequest describes one batch-grading request.
type SubmitRequest struct {
	AssignmentID  uuid.UUID
	SubmissionIDs []uuid.UUID
	RubricID      *uuid.UUID
	SkipGraded    bool
}

// Scheduler accepts grading requests, creates the job record, and hands the
// batch to the grading queue without waiting for it.
type Scheduler struct {
	jobs  repository.GradingJobRepository
	queue async.Queue
	log   *slog.Logger
}

func New(jobs repository.GradingJobRepository, queue async.Queue, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{jobs: jobs, queue: queue, log: log}
}

// Submit validates the request, persists a queued job record, and enqueues
// the batch. It returns the job id immediately; progress is observed through
// Status. An empty submission list is rejected without creating a record.
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	if len(req.SubmissionIDs) == 0 {
		return uuid.Nil, common.NewAppError("NOTHING_TO_GRADE", "no submissions to grade", common.ErrInvalidInput)
	}

	job := &entity.GradingJob{
		ID:             uuid.New(),
		AssignmentID:   req.AssignmentID,
		Status:         constants.JobStatusQueued,
		Total:          len(req.SubmissionIDs),
		Processed:      0,
		CurrentMessage: "Waiting for a grading worker",
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return uuid.Nil, err
	}

	if err := s.queue.Enqueue(ctx, async.Job{
		JobID:         job.ID,
		SubmissionIDs: req.SubmissionIDs,
		RubricID:      req.RubricID,
		SkipGraded:    req.SkipGraded,
		SubmittedAt:   time.Now().UTC(),
	}); err != nil {
		return uuid.Nil, common.WrapError(err, "enqueue grading batch")
	}

	s.log.Info("grading.job.submitted",
		"job_id", job.ID,
		"assignment_id", req.AssignmentID,
		"total", job.Total,
		"skip_graded", req.SkipGraded,
	)
	return job.ID, nil
}

// Status projects a job record into the client-facing progress payload. It
// is read-only and safe to call while the worker is mutating the record.
func (s *Scheduler) Status(ctx context.Context, jobID uuid.UUID) (*entity.ProgressView, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &entity.ProgressView{
		ID:              job.ID,
		Status:          job.Status,
		Processed:       job.Processed,
		Total:           job.Total,
		ProgressPercent: progressPercent(job.Processed, job.Total),
		CurrentMessage:  job.CurrentMessage,
		Completed:       job.Status == constants.JobStatusCompleted,
	}
	if job.Status == constants.JobStatusCompleted {
		view.Results = job.Results
	}
	if job.Status == constants.JobStatusFailed && job.ErrorMessage != "" {
		msg := job.ErrorMessage
		view.Error = &msg
	}
	return view, nil
}

// progressPercent rounds processed/total to one decimal place; zero totals
// report zero rather than dividing.
func progressPercent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(processed)/float64(total)*1000) / 10
}
