package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/aigrader/aigrader/constants"
)

// Outcome is the per-submission result recorded into a job's results list.
type Outcome struct {
	SubmissionID uuid.UUID               `json:"submission_id"`
	StudentName  string                  `json:"student_name,omitempty"`
	Status       constants.OutcomeStatus `json:"status"`
	Grade        *float64                `json:"grade,omitempty"`
	Message      string                  `json:"message,omitempty"`
}

// GradingJob tracks the status and progress of one background grading batch.
//
// Invariants maintained by the worker: 0 <= Processed <= Total, status only
// moves forward, Results is non-nil iff status is completed, ErrorMessage is
// non-empty iff status is failed.
type GradingJob struct {
	ID             uuid.UUID           `json:"id"`
	AssignmentID   uuid.UUID           `json:"assignment_id"`
	Status         constants.JobStatus `json:"status"`
	Total          int                 `json:"total"`
	Processed      int                 `json:"processed"`
	CurrentMessage string              `json:"current_message,omitempty"`
	Results        []Outcome           `json:"results,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// ProgressView is the client-facing projection of a GradingJob returned by
// the status endpoint. Results stays null until the job completes; Error
// stays null unless the job failed.
type ProgressView struct {
	ID              uuid.UUID           `json:"id"`
	Status          constants.JobStatus `json:"status"`
	Processed       int                 `json:"processed"`
	Total           int                 `json:"total"`
	ProgressPercent float64             `json:"progress_percent"`
	CurrentMessage  string              `json:"current_message"`
	Completed       bool                `json:"completed"`
	Results         []Outcome           `json:"results"`
	Error           *string             `json:"error"`
}
