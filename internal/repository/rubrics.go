package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aigrader/aigrader/internal/common"
	"github.com/aigrader/aigrader/internal/entity"
)

// RubricRepository looks up rubrics and their criteria for prompt
// construction. A missing rubric is a batch-level failure for the worker.
type RubricRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Rubric, error)
	GetCriteria(ctx context.Context, id uuid.UUID) ([]entity.RubricCriterion, error)
}

type rubricRepo struct {
	db  *DB
	log *slog.Logger
}

func NewRubricRepository(db *DB, log *slog.Logger) RubricRepository {
	return &rubricRepo{db: db, log: log}
}

func (r *rubricRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Rubric, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id, name, level, criteria, created_at
		FROM rubrics WHERE id = ?`), id.String())

	var (
		rubric   entity.Rubric
		idStr    string
		criteria string
	)
	err := row.Scan(&idStr, &rubric.Name, &rubric.Level, &criteria, &rubric.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rubric %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("rubric get failed", "rubric_id", id, "error", err)
		return nil, common.WrapError(err, "get rubric")
	}

	rubric.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, common.WrapError(err, "parse rubric id")
	}
	if criteria != "" {
		if err := json.Unmarshal([]byte(criteria), &rubric.Criteria); err != nil {
			return nil, common.WrapError(err, "decode rubric criteria")
		}
	}
	return &rubric, nil
}

func (r *rubricRepo) GetCriteria(ctx context.Context, id uuid.UUID) ([]entity.RubricCriterion, error) {
	rubric, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rubric.Criteria, nil
}
