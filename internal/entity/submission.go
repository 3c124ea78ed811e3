package entity

import (
	"time"

	"github.com/google/uuid"
)

// Submission represents one student submission for data transfer between layers.
// Question is denormalized from the parent assignment for prompt construction.
type Submission struct {
	ID           uuid.UUID  `json:"id"`
	AssignmentID uuid.UUID  `json:"assignment_id"`
	StudentName  string     `json:"student_name"`
	Question     string     `json:"question"`
	Answer       string     `json:"answer"`
	Grade        *float64   `json:"grade,omitempty"`
	Feedback     *string    `json:"feedback,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	GradedAt     *time.Time `json:"graded_at,omitempty"`
}

// Graded reports whether the submission already carries both a grade and
// non-empty feedback. The worker's skip-already-graded flag keys off this.
func (s *Submission) Graded() bool {
	return s.Grade != nil && s.Feedback != nil && *s.Feedback != ""
}

// RubricCriterion is one named criterion within a rubric.
type RubricCriterion struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Rubric holds the criteria a grading prompt is built from.
type Rubric struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Level     string            `json:"level"`
	Criteria  []RubricCriterion `json:"criteria"`
	CreatedAt time.Time         `json:"created_at"`
}
