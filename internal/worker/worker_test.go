package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigrader/aigrader/constants"
	"github.com/aigrader/aigrader/internal/common"
	"github.com/aigrader/aigrader/internal/entity"
	"github.com/aigrader/aigrader/internal/grading"
)

type fakeJobRepo struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]entity.GradingJob
	history []entity.GradingJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[uuid.UUID]entity.GradingJob{}}
}

func (r *fakeJobRepo) Create(_ context.Context, job *entity.GradingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.Status == "" {
		job.Status = constants.JobStatusQueued
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeJobRepo) Get(_ context.Context, id uuid.UUID) (*entity.GradingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("grading job %s: %w", id, common.ErrNotFound)
	}
	copied := job
	return &copied, nil
}

func (r *fakeJobRepo) Update(_ context.Context, job *entity.GradingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return fmt.Errorf("grading job %s: %w", job.ID, common.ErrNotFound)
	}
	r.jobs[job.ID] = *job
	r.history = append(r.history, *job)
	return nil
}

type fakeSubRepo struct {
	mu         sync.Mutex
	subs       map[uuid.UUID]entity.Submission
	persistErr error
	updates    []uuid.UUID
}

func newFakeSubRepo(subs ...entity.Submission) *fakeSubRepo {
	r := &fakeSubRepo{subs: map[uuid.UUID]entity.Submission{}}
	for _, s := range subs {
		r.subs[s.ID] = s
	}
	return r
}

func (r *fakeSubRepo) Get(_ context.Context, id uuid.UUID) (*entity.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", id, common.ErrNotFound)
	}
	copied := sub
	return &copied, nil
}

func (r *fakeSubRepo) ListByAssignment(_ context.Context, assignmentID uuid.UUID) ([]*entity.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Submission
	for _, s := range r.subs {
		if s.AssignmentID == assignmentID {
			copied := s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSubRepo) UpdateGrade(_ context.Context, id uuid.UUID, grade float64, feedback string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.persistErr != nil {
		return r.persistErr
	}
	sub, ok := r.subs[id]
	if !ok {
		return fmt.Errorf("submission %s: %w", id, common.ErrNotFound)
	}
	sub.Grade = &grade
	sub.Feedback = &feedback
	r.subs[id] = sub
	r.updates = append(r.updates, id)
	return nil
}

type fakeRubricRepo struct {
	rubrics map[uuid.UUID]entity.Rubric
}

func (r *fakeRubricRepo) Get(_ context.Context, id uuid.UUID) (*entity.Rubric, error) {
	rubric, ok := r.rubrics[id]
	if !ok {
		return nil, fmt.Errorf("rubric %s: %w", id, common.ErrNotFound)
	}
	return &rubric, nil
}

func (r *fakeRubricRepo) GetCriteria(ctx context.Context, id uuid.UUID) ([]entity.RubricCriterion, error) {
	rubric, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rubric.Criteria, nil
}

// scriptedGateway replays one response (or error) per call in order.
type scriptedGateway struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
}

func (g *scriptedGateway) Generate(_ context.Context, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.responses) {
		return g.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func newSubmission(assignmentID uuid.UUID, student string) entity.Submission {
	return entity.Submission{
		ID:           uuid.New(),
		AssignmentID: assignmentID,
		StudentName:  student,
		Question:     "Explain photosynthesis.",
		Answer:       "Plants convert light into chemical energy.",
	}
}

const goodResponse = `{"feedback":"Well reasoned","grade":88,"summary":"Strong answer","glow":"Clarity","grow":"Depth","think_about_it":"Edge cases","rubric":{"Overall":"Good"}}`

func TestRunCompletesDespiteItemFailure(t *testing.T) {
	assignmentID := uuid.New()
	s1 := newSubmission(assignmentID, "Ada")
	s2 := newSubmission(assignmentID, "Ben")
	s3 := newSubmission(assignmentID, "Cam")

	jobs := newFakeJobRepo()
	subs := newFakeSubRepo(s1, s2, s3)
	gateway := &scriptedGateway{
		responses: []string{goodResponse, goodResponse, ""},
		errs:      []error{nil, nil, errors.New("upstream timeout")},
	}

	job := &entity.GradingJob{ID: uuid.New(), AssignmentID: assignmentID, Total: 3}
	require.NoError(t, jobs.Create(context.Background(), job))

	w := New(jobs, subs, &fakeRubricRepo{}, gateway, nil)
	w.Run(context.Background(), Params{
		JobID:         job.ID,
		SubmissionIDs: []uuid.UUID{s1.ID, s2.ID, s3.ID},
	})

	final, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, final.Status)
	assert.Equal(t, 3, final.Processed)
	require.Len(t, final.Results, 3)

	assert.Equal(t, constants.OutcomeSuccess, final.Results[0].Status)
	require.NotNil(t, final.Results[0].Grade)
	assert.Equal(t, 88.0, *final.Results[0].Grade)

	// The failed item is absorbed: error outcome, default grade persisted.
	assert.Equal(t, constants.OutcomeError, final.Results[2].Status)
	require.NotNil(t, final.Results[2].Grade)
	assert.Equal(t, constants.DefaultGrade, *final.Results[2].Grade)

	failedSub, err := subs.Get(context.Background(), s3.ID)
	require.NoError(t, err)
	require.NotNil(t, failedSub.Grade)
	assert.Equal(t, constants.DefaultGrade, *failedSub.Grade)
	require.NotNil(t, failedSub.Feedback)
	assert.Contains(t, *failedSub.Feedback, "Unable to grade submission")
}

func TestRunFailsWhenRubricMissing(t *testing.T) {
	assignmentID := uuid.New()
	s1 := newSubmission(assignmentID, "Ada")

	jobs := newFakeJobRepo()
	subs := newFakeSubRepo(s1)
	gateway := &scriptedGateway{responses: []string{goodResponse}}

	job := &entity.GradingJob{ID: uuid.New(), AssignmentID: assignmentID, Total: 1}
	require.NoError(t, jobs.Create(context.Background(), job))

	missing := uuid.New()
	w := New(jobs, subs, &fakeRubricRepo{}, gateway, nil)
	w.Run(context.Background(), Params{
		JobID:         job.ID,
		SubmissionIDs: []uuid.UUID{s1.ID},
		RubricID:      &missing,
	})

	final, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, final.Status)
	assert.Equal(t, 0, final.Processed)
	assert.Nil(t, final.Results)
	assert.NotEmpty(t, final.ErrorMessage)

	// Nothing was graded.
	assert.Equal(t, 0, gateway.calls)
	assert.Empty(t, subs.updates)
}

func TestRunSkipsAlreadyGraded(t *testing.T) {
	assignmentID := uuid.New()
	grade := 91.0
	feedback := "done"
	s1 := newSubmission(assignmentID, "Ada")
	s1.Grade = &grade
	s1.Feedback = &feedback
	s2 := newSubmission(assignmentID, "Ben")
	s2.Grade = &grade
	s2.Feedback = &feedback

	jobs := newFakeJobRepo()
	subs := newFakeSubRepo(s1, s2)
	gateway := &scriptedGateway{}

	job := &entity.GradingJob{ID: uuid.New(), AssignmentID: assignmentID, Total: 2}
	require.NoError(t, jobs.Create(context.Background(), job))

	w := New(jobs, subs, &fakeRubricRepo{}, gateway, nil)
	w.Run(context.Background(), Params{
		JobID:         job.ID,
		SubmissionIDs: []uuid.UUID{s1.ID, s2.ID},
		SkipGraded:    true,
	})

	final, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, final.Status)
	assert.Equal(t, 2, final.Processed)
	require.Len(t, final.Results, 2)
	for _, o := range final.Results {
		assert.Equal(t, constants.OutcomeSkipped, o.Status)
		require.NotNil(t, o.Grade)
		assert.Equal(t, grade, *o.Grade)
	}
	assert.Equal(t, 0, gateway.calls)
}

func TestRunSecondPassLeavesGradesUntouched(t *testing.T) {
	assignmentID := uuid.New()
	s1 := newSubmission(assignmentID, "Ada")
	s2 := newSubmission(assignmentID, "Ben")
	ids := []uuid.UUID{s1.ID, s2.ID}

	jobs := newFakeJobRepo()
	subs := newFakeSubRepo(s1, s2)
	gateway := &scriptedGateway{responses: []string{goodResponse, goodResponse}}
	w := New(jobs, subs, &fakeRubricRepo{}, gateway, nil)

	first := &entity.GradingJob{ID: uuid.New(), AssignmentID: assignmentID, Total: 2}
	require.NoError(t, jobs.Create(context.Background(), first))
	w.Run(context.Background(), Params{JobID: first.ID, SubmissionIDs: ids, SkipGraded: true})

	gradedOnce := map[uuid.UUID]float64{}
	for _, id := range ids {
		sub, err := subs.Get(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, sub.Grade)
		gradedOnce[id] = *sub.Grade
	}
	callsAfterFirst := gateway.calls

	second := &entity.GradingJob{ID: uuid.New(), AssignmentID: assignmentID, Total: 2}
	require.NoError(t, jobs.Create(context.Background(), second))
	w.Run(context.Background(), Params{JobID: second.ID, SubmissionIDs: ids, SkipGraded: true})

	final, err := jobs.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, final.Status)
	assert.Equal(t, 2, final.Processed)
	for _, o := range final.Results {
		assert.Equal(t, constants.OutcomeSkipped, o.Status)
	}

	// No further gateway calls and no grade changes on the second pass.
	assert.Equal(t, callsAfterFirst, gateway.calls)
	for _, id := range ids {
		sub, err := subs.Get(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, sub.Grade)
		assert.Equal(t, gradedOnce[id], *sub.Grade)
	}
}

func TestRunMissingSubmissionBecomesErrorOutcome(t *testing.T) {
	assignmentID := uuid.New()
	s1 := newSubmission(assignmentID, "Ada")

	jobs := newFakeJobRepo()
	subs := newFakeSubRepo(s1)
	gateway := &scriptedGateway{responses: []string{goodResponse}}

	job := &entity.GradingJob{ID: uuid.New(), AssignmentID: assignmentID, Total: 2}
	require.NoError(t, jobs.Create(context.Background(), job))

	ghost := uuid.New()
	w := New(jobs, subs, &fakeRubricRepo{}, gateway, nil)
	w.Run(context.Background(), Params{
		JobID:         job.ID,
		SubmissionIDs: []uuid.UUID{ghost, s1.ID},
	})

	final, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, final.Status)
	assert.Equal(t, 2, final.Processed)
	require.Len(t, final.Results, 2)
	assert.Equal(t, constants.OutcomeError, final.Results[0].Status)
	assert.Equal(t, constants.OutcomeSuccess, final.Results[1].Status)
}

func TestRunProgressIsMonotonic(t *testing.T) {
	assignmentID := uuid.New()
	var (
		ids       []uuid.UUID
		subSlice  []entity.Submission
		responses []string
	)
	for i := 0; i < 5; i++ {
		s := newSubmission(assignmentID, fmt.Sprintf("Student %d", i))
		ids = append(ids, s.ID)
		subSlice = append(subSlice, s)
		responses = append(responses, goodResponse)
	}

	jobs := newFakeJobRepo()
	subs := newFakeSubRepo(subSlice...)
	gateway := &scriptedGateway{responses: responses}

	job := &entity.GradingJob{ID: uuid.New(), AssignmentID: assignmentID, Total: 5}
	require.NoError(t, jobs.Create(context.Background(), job))

	w := New(jobs, subs, &fakeRubricRepo{}, gateway, nil)
	w.Run(context.Background(), Params{JobID: job.ID, SubmissionIDs: ids})

	prev := 0
	for _, snapshot := range jobs.history {
		assert.GreaterOrEqual(t, snapshot.Processed, prev)
		assert.LessOrEqual(t, snapshot.Processed, snapshot.Total)
		// Results appear only on the terminal write.
		if snapshot.Results != nil {
			assert.Equal(t, constants.JobStatusCompleted, snapshot.Status)
		}
		prev = snapshot.Processed
	}
	assert.Equal(t, 5, prev)
}

func TestRunIgnoresTerminalJob(t *testing.T) {
	jobs := newFakeJobRepo()
	gateway := &scriptedGateway{}

	job := &entity.GradingJob{ID: uuid.New(), Status: constants.JobStatusCompleted, Total: 1}
	require.NoError(t, jobs.Create(context.Background(), job))

	w := New(jobs, newFakeSubRepo(), &fakeRubricRepo{}, gateway, nil)
	w.Run(context.Background(), Params{JobID: job.ID, SubmissionIDs: []uuid.UUID{uuid.New()}})

	assert.Equal(t, 0, gateway.calls)
	assert.Empty(t, jobs.history)
}

func TestGradeValue(t *testing.T) {
	tests := []struct {
		name  string
		grade string
		raw   string
		want  float64
	}{
		{name: "record grade wins", grade: "92/100", raw: "grade: 50", want: 92},
		{name: "bare number grade", grade: "85.5", raw: "", want: 85.5},
		{name: "falls back to raw text", grade: "Not provided in AI response.", raw: "Overall grade: 64", want: 64},
		{name: "default when nothing parses", grade: "Not provided in AI response.", raw: "no digits", want: constants.DefaultGrade},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GradeValue(grading.Record{Grade: tt.grade}, tt.raw)
			assert.Equal(t, tt.want, got)
		})
	}
}
