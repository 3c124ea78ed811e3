package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one queued grading batch. The submission list is fixed at submit
// time so progress totals never move under a polling client.
type Job struct {
	JobID         uuid.UUID
	SubmissionIDs []uuid.UUID
	RubricID      *uuid.UUID
	SkipGraded    bool
	SubmittedAt   time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
