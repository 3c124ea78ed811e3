package constants

// JobStatus is the canonical status for rows in grading_jobs.
type JobStatus string

// Stable values (store these exact strings in DB). Transitions only move
// forward: queued -> processing -> completed | failed.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a job in this status will never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// OutcomeStatus tags the per-submission result recorded into a job's results.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeError   OutcomeStatus = "error"
)

// DefaultGrade is assigned when no numeric grade can be recovered from the
// model's response, or when grading an item fails outright.
const DefaultGrade float64 = 70

// DefaultGradeString is DefaultGrade in the "<score>/100" form the grading
// record carries.
const DefaultGradeString = "70/100"

// DefaultSchoolLevel is used when no rubric supplies one.
const DefaultSchoolLevel = "High School"
