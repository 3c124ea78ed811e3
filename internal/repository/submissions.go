package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aigrader/aigrader/internal/common"
	"github.com/aigrader/aigrader/internal/entity"
)

type SubmissionRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Submission, error)
	ListByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]*entity.Submission, error)
	UpdateGrade(ctx context.Context, id uuid.UUID, grade float64, feedback string) error
}

type submissionRepo struct {
	db  *DB
	log *slog.Logger
}

func NewSubmissionRepository(db *DB, log *slog.Logger) SubmissionRepository {
	return &submissionRepo{db: db, log: log}
}

const submissionColumns = `
	s.id, s.assignment_id, s.student_name, a.question, s.answer,
	s.grade, s.feedback, s.graded_at, s.created_at, s.updated_at`

func (r *submissionRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Submission, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+submissionColumns+`
		FROM submissions s
		JOIN assignments a ON a.id = s.assignment_id
		WHERE s.id = ?`), id.String())

	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("submission get failed", "submission_id", id, "error", err)
		return nil, common.WrapError(err, "get submission")
	}
	return sub, nil
}

func (r *submissionRepo) ListByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]*entity.Submission, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT `+submissionColumns+`
		FROM submissions s
		JOIN assignments a ON a.id = s.assignment_id
		WHERE s.assignment_id = ?
		ORDER BY s.student_name, s.created_at`), assignmentID.String())
	if err != nil {
		r.log.Error("submission list failed", "assignment_id", assignmentID, "error", err)
		return nil, common.WrapError(err, "list submissions")
	}
	defer rows.Close()

	var out []*entity.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, common.WrapError(err, "scan submission")
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate submissions")
	}
	return out, nil
}

func (r *submissionRepo) UpdateGrade(ctx context.Context, id uuid.UUID, grade float64, feedback string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE submissions
		SET grade = ?, feedback = ?, graded_at = ?, updated_at = ?
		WHERE id = ?`),
		grade, feedback, now, now, id.String(),
	)
	if err != nil {
		r.log.Error("submission grade update failed", "submission_id", id, "error", err)
		return common.WrapError(err, "update submission grade")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("submission %s: %w", id, common.ErrNotFound)
	}
	r.log.Info("submission graded", "submission_id", id, "grade", grade)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*entity.Submission, error) {
	var (
		sub      entity.Submission
		idStr    string
		aid      string
		grade    sql.NullFloat64
		feedback sql.NullString
		gradedAt sql.NullTime
	)
	err := row.Scan(&idStr, &aid, &sub.StudentName, &sub.Question, &sub.Answer,
		&grade, &feedback, &gradedAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	sub.AssignmentID, err = uuid.Parse(aid)
	if err != nil {
		return nil, err
	}
	if grade.Valid {
		sub.Grade = &grade.Float64
	}
	if feedback.Valid {
		sub.Feedback = &feedback.String
	}
	if gradedAt.Valid {
		sub.GradedAt = &gradedAt.Time
	}
	return &sub, nil
}
