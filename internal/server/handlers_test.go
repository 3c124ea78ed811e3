package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigrader/aigrader/internal/async"
	"github.com/aigrader/aigrader/internal/common"
	"github.com/aigrader/aigrader/internal/entity"
	"github.com/aigrader/aigrader/internal/export"
	"github.com/aigrader/aigrader/internal/scheduler"
	"github.com/aigrader/aigrader/internal/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]entity.GradingJob
}

func (r *memJobRepo) Create(_ context.Context, job *entity.GradingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memJobRepo) Get(_ context.Context, id uuid.UUID) (*entity.GradingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("grading job %s: %w", id, common.ErrNotFound)
	}
	copied := job
	return &copied, nil
}

func (r *memJobRepo) Update(_ context.Context, job *entity.GradingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

type memSubRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]entity.Submission
}

func (r *memSubRepo) Get(_ context.Context, id uuid.UUID) (*entity.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", id, common.ErrNotFound)
	}
	copied := sub
	return &copied, nil
}

func (r *memSubRepo) ListByAssignment(_ context.Context, assignmentID uuid.UUID) ([]*entity.Submission, error) {
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

func (r *memSubRepo) UpdateGrade(_ context.Context, id uuid.UUID, grade float64, feedback string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return fmt.Errorf("submission %s: %w", id, common.ErrNotFound)
	}
	sub.Grade = &grade
	sub.Feedback = &feedback
	r.subs[id] = sub
	return nil
}

type memRubricRepo struct{}

func (memRubricRepo) Get(_ context.Context, id uuid.UUID) (*entity.Rubric, error) {
	return nil, fmt.Errorf("rubric %s: %w", id, common.ErrNotFound)
}

func (memRubricRepo) GetCriteria(_ context.Context, id uuid.UUID) ([]entity.RubricCriterion, error) {
	return nil, fmt.Errorf("rubric %s: %w", id, common.ErrNotFound)
}

type staticGateway struct{ response string }

func (g staticGateway) Generate(context.Context, string) (string, error) {
	return g.response, nil
}

// holdQueue accepts batches without running them, so jobs stay queued.
type holdQueue struct {
	mu       sync.Mutex
	enqueued []async.Job
}

func (q *holdQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *holdQueue) Shutdown(context.Context) {}

type testEnv struct {
	router *gin.Engine
	jobs   *memJobRepo
	subs   *memSubRepo
	queue  *holdQueue
}

func newTestEnv() *testEnv {
	log := slog.Default()
	jobs := &memJobRepo{jobs: map[uuid.UUID]entity.GradingJob{}}
	subs := &memSubRepo{subs: map[uuid.UUID]entity.Submission{}}
	queue := &holdQueue{}
	gateway := staticGateway{response: `{"feedback":"Nice work","grade":85,"summary":"Solid"}`}

	router := NewRouter(RouterConfig{
		Scheduler:   scheduler.New(jobs, queue, log),
		Grader:      worker.NewGrader(gateway, log),
		Submissions: subs,
		Rubrics:     memRubricRepo{},
		Export:      export.NewService(subs, log),
		Logger:      log,
	})
	return &testEnv{router: router, jobs: jobs, subs: subs, queue: queue}
}

func (e *testEnv) addSubmission(assignmentID uuid.UUID, student string) entity.Submission {
	s := entity.Submission{
		ID:           uuid.New(),
		AssignmentID: assignmentID,
		StudentName:  student,
		Question:     "Explain recursion.",
		Answer:       "A function calling itself with a smaller input.",
	}
	e.subs.mu.Lock()
	e.subs.subs[s.ID] = s
	e.subs.mu.Unlock()
	return s
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGradeAllQueuesJob(t *testing.T) {
	env := newTestEnv()
	assignmentID := uuid.New()
	env.addSubmission(assignmentID, "Ada")
	env.addSubmission(assignmentID, "Ben")

	rec := env.do(http.MethodPost, "/api/assignments/"+assignmentID.String()+"/grade-all",
		map[string]any{"skip_graded": true})

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp gradeAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, 2, resp.Total)

	jobID, err := uuid.Parse(resp.JobID)
	require.NoError(t, err)

	require.Len(t, env.queue.enqueued, 1)
	assert.Equal(t, jobID, env.queue.enqueued[0].JobID)
	assert.True(t, env.queue.enqueued[0].SkipGraded)
}

func TestGradeAllEmptyAssignmentRejected(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/assignments/"+uuid.NewString()+"/grade-all", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var envl ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envl))
	assert.Equal(t, "NOTHING_TO_GRADE", envl.Error.Code)
	// No job record was created.
	assert.Empty(t, env.jobs.jobs)
}

func TestGradeAllInvalidAssignmentID(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodPost, "/api/assignments/not-a-uuid/grade-all", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobStatusQueuedJob(t *testing.T) {
	env := newTestEnv()
	assignmentID := uuid.New()
	env.addSubmission(assignmentID, "Ada")

	rec := env.do(http.MethodPost, "/api/assignments/"+assignmentID.String()+"/grade-all", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created gradeAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(http.MethodGet, "/api/grading-jobs/"+created.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "queued", view["status"])
	assert.Equal(t, float64(0), view["processed"])
	assert.Equal(t, float64(1), view["total"])
	assert.Equal(t, false, view["completed"])
	assert.Nil(t, view["results"])
	assert.Nil(t, view["error"])
}

func TestJobStatusNotFound(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/api/grading-jobs/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var envl ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envl))
	assert.Equal(t, "NOT_FOUND", envl.Error.Code)
}

func TestGradeAdHoc(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/grade", map[string]any{
		"question": "Explain recursion.",
		"answer":   "A function calling itself.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp gradeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 85.0, resp.Grade)
	assert.Equal(t, "Nice work", resp.Record.Feedback)
	assert.Equal(t, "85/100", resp.Record.Grade)
}

func TestGradeAdHocMissingFields(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodPost, "/api/grade", map[string]any{"question": "only"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateCriterion(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/api/evaluate", map[string]any{
		"question":  "Explain recursion.",
		"answer":    "A function calling itself.",
		"criterion": "Clarity",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp evaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// Static gateway response has no parseable score; evaluation text passes
	// through untouched.
	assert.Nil(t, resp.Score)
	assert.NotEmpty(t, resp.Evaluation)
}

func TestEvaluateCriterionMissingFields(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodPost, "/api/evaluate", map[string]any{"question": "q"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGradeSubmissionPersists(t *testing.T) {
	env := newTestEnv()
	sub := env.addSubmission(uuid.New(), "Ada")

	rec := env.do(http.MethodPost, "/api/submissions/"+sub.ID.String()+"/grade", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp gradeSubmissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, sub.ID.String(), resp.SubmissionID)
	assert.Equal(t, 85.0, resp.Grade)

	stored, err := env.subs.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Grade)
	assert.Equal(t, 85.0, *stored.Grade)
	require.NotNil(t, stored.Feedback)
	assert.Equal(t, "Nice work", *stored.Feedback)
}

func TestGradeSubmissionNotFound(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodPost, "/api/submissions/"+uuid.NewString()+"/grade", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGradebookDownload(t *testing.T) {
	env := newTestEnv()
	assignmentID := uuid.New()
	env.addSubmission(assignmentID, "Ada")

	rec := env.do(http.MethodGet, "/api/assignments/"+assignmentID.String()+"/gradebook.xlsx", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "gradebook-"+assignmentID.String())
	assert.NotEmpty(t, rec.Body.Bytes())
}
