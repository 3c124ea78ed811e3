package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aigrader/aigrader/constants"
	"github.com/aigrader/aigrader/internal/entity"
	"github.com/aigrader/aigrader/internal/llm"
	"github.com/aigrader/aigrader/internal/repository"
)

// Params identifies one batch run: the job record to drive and the fixed
// submission list selected at submit time.
type Params struct {
	JobID         uuid.UUID
	SubmissionIDs []uuid.UUID
	RubricID      *uuid.UUID
	SkipGraded    bool
}

// Worker processes grading batches sequentially. Submissions are graded one
// at a time in the given order, and the job record is persisted after every
// item so a polling client always sees current progress. Per-item failures
// never abort the batch; only failures before the loop (e.g. a missing
// rubric) mark the job failed.
type Worker struct {
	jobs    repository.GradingJobRepository
	subs    repository.SubmissionRepository
	rubrics repository.RubricRepository
	grader  *Grader
	log     *slog.Logger
}

func New(
	jobs repository.GradingJobRepository,
	subs repository.SubmissionRepository,
	rubrics repository.RubricRepository,
	gateway llm.Gateway,
	log *slog.Logger,
) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		jobs:    jobs,
		subs:    subs,
		rubrics: rubrics,
		grader:  NewGrader(gateway, log),
		log:     log,
	}
}

// Run executes one batch to completion. It owns all writes to the job record
// for its lifetime; errors surfacing from Run itself are logged, not
// returned, because no caller waits on a detached batch.
func (w *Worker) Run(ctx context.Context, p Params) {
	job, err := w.jobs.Get(ctx, p.JobID)
	if err != nil {
		w.log.Error("grading.job.load_failed", "job_id", p.JobID, "error", err)
		return
	}
	if job.Status.Terminal() {
		w.log.Warn("grading.job.already_terminal", "job_id", p.JobID, "status", job.Status)
		return
	}

	w.log.Info("grading.job.start",
		"job_id", job.ID,
		"assignment_id", job.AssignmentID,
		"total", job.Total,
		"skip_graded", p.SkipGraded,
	)

	job.Status = constants.JobStatusProcessing
	if err := w.jobs.Update(ctx, job); err != nil {
		w.log.Error("grading.job.update_failed", "job_id", job.ID, "error", err)
		return
	}

	// Batch-level setup; failure here is fatal for the whole job.
	var (
		criteria []entity.RubricCriterion
		level    = constants.DefaultSchoolLevel
	)
	if p.RubricID != nil {
		rubric, err := w.rubrics.Get(ctx, *p.RubricID)
		if err != nil {
			w.fail(ctx, job, fmt.Errorf("load rubric %s: %w", *p.RubricID, err))
			return
		}
		criteria = rubric.Criteria
		if rubric.Level != "" {
			level = rubric.Level
		}
	}

	outcomes := make([]entity.Outcome, 0, len(p.SubmissionIDs))
	for _, sid := range p.SubmissionIDs {
		outcome := w.gradeOne(ctx, sid, criteria, level, p.SkipGraded)
		outcomes = append(outcomes, outcome)

		job.Processed++
		job.CurrentMessage = progressMessage(outcome)
		if err := w.jobs.Update(ctx, job); err != nil {
			w.log.Error("grading.job.progress_update_failed", "job_id", job.ID, "error", err)
		}
	}

	job.Status = constants.JobStatusCompleted
	job.CurrentMessage = "All submissions graded"
	job.Results = outcomes
	if err := w.jobs.Update(ctx, job); err != nil {
		w.log.Error("grading.job.complete_update_failed", "job_id", job.ID, "error", err)
		return
	}
	w.log.Info("grading.job.completed", "job_id", job.ID, "processed", job.Processed, "total", job.Total)
}

// gradeOne handles a single submission and never returns an error: any
// per-item failure is absorbed into an error outcome.
func (w *Worker) gradeOne(ctx context.Context, sid uuid.UUID, criteria []entity.RubricCriterion, level string, skipGraded bool) entity.Outcome {
	sub, err := w.subs.Get(ctx, sid)
	if err != nil {
		w.log.Error("grading.item.load_failed", "submission_id", sid, "error", err)
		return entity.Outcome{
			SubmissionID: sid,
			Status:       constants.OutcomeError,
			Message:      fmt.Sprintf("load submission: %v", err),
		}
	}

	if skipGraded && sub.Graded() {
		w.log.Info("grading.item.skipped", "submission_id", sid, "student", sub.StudentName)
		return entity.Outcome{
			SubmissionID: sid,
			StudentName:  sub.StudentName,
			Status:       constants.OutcomeSkipped,
			Grade:        sub.Grade,
			Message:      "already graded",
		}
	}

	rec, gradeVal, gradeErr := w.grader.Grade(ctx, GradeRequest{
		Question:      sub.Question,
		StudentAnswer: sub.Answer,
		Criteria:      criteria,
		SchoolLevel:   level,
	})
	// On gateway failure rec is the fallback record; persist it anyway so the
	// submission carries an explicit error-state feedback and default grade.
	if err := w.subs.UpdateGrade(ctx, sid, gradeVal, rec.Feedback); err != nil {
		w.log.Error("grading.item.persist_failed", "submission_id", sid, "error", err)
		return entity.Outcome{
			SubmissionID: sid,
			StudentName:  sub.StudentName,
			Status:       constants.OutcomeError,
			Message:      fmt.Sprintf("persist grade: %v", err),
		}
	}
	if gradeErr != nil {
		return entity.Outcome{
			SubmissionID: sid,
			StudentName:  sub.StudentName,
			Status:       constants.OutcomeError,
			Grade:        &gradeVal,
			Message:      gradeErr.Error(),
		}
	}

	w.log.Info("grading.item.graded", "submission_id", sid, "student", sub.StudentName, "grade", gradeVal)
	return entity.Outcome{
		SubmissionID: sid,
		StudentName:  sub.StudentName,
		Status:       constants.OutcomeSuccess,
		Grade:        &gradeVal,
	}
}

// fail marks the job failed before the per-item loop ran. Results stay nil.
func (w *Worker) fail(ctx context.Context, job *entity.GradingJob, cause error) {
	w.log.Error("grading.job.failed", "job_id", job.ID, "error", cause)
	job.Status = constants.JobStatusFailed
	job.ErrorMessage = cause.Error()
	job.CurrentMessage = "Grading failed"
	if err := w.jobs.Update(ctx, job); err != nil {
		w.log.Error("grading.job.fail_update_failed", "job_id", job.ID, "error", err)
	}
}

func progressMessage(o entity.Outcome) string {
	name := o.StudentName
	if name == "" {
		name = o.SubmissionID.String()
	}
	switch o.Status {
	case constants.OutcomeSkipped:
		return fmt.Sprintf("Skipped %s (already graded)", name)
	case constants.OutcomeError:
		return fmt.Sprintf("Error grading %s", name)
	default:
		return fmt.Sprintf("Graded %s", name)
	}
}
