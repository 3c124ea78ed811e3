package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aigrader/aigrader/constants"
	"github.com/aigrader/aigrader/internal/common"
	"github.com/aigrader/aigrader/internal/entity"
	"github.com/aigrader/aigrader/internal/export"
	"github.com/aigrader/aigrader/internal/grading"
	"github.com/aigrader/aigrader/internal/repository"
	"github.com/aigrader/aigrader/internal/scheduler"
	"github.com/aigrader/aigrader/internal/worker"
)

// GradingHandler serves the grading API. Batch grading is asynchronous; the
// two single-submission endpoints grade inline and block on the model call.
type GradingHandler struct {
	scheduler *scheduler.Scheduler
	grader    *worker.Grader
	subs      repository.SubmissionRepository
	rubrics   repository.RubricRepository
	export    *export.Service
	log       *slog.Logger
}

func (h *GradingHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type gradeAllRequest struct {
	RubricID   *string `json:"rubric_id"`
	SkipGraded bool    `json:"skip_graded"`
}

type gradeAllResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// GradeAll queues a background batch over every submission of the assignment
// and returns the job id for polling. Assignments with no submissions are
// rejected before a job record exists.
func (h *GradingHandler) GradeAll(c *gin.Context) {
	assignmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid assignment id")
		return
	}

	var req gradeAllRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}
	rubricID, err := parseOptionalUUID(req.RubricID)
	if err != nil {
		respondBadRequest(c, "invalid rubric id")
		return
	}

	subs, err := h.subs.ListByAssignment(c.Request.Context(), assignmentID)
	if err != nil {
		RespondError(c, err)
		return
	}
	ids := make([]uuid.UUID, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}

	jobID, err := h.scheduler.Submit(c.Request.Context(), scheduler.SubmitRequest{
		AssignmentID:  assignmentID,
		SubmissionIDs: ids,
		RubricID:      rubricID,
		SkipGraded:    req.SkipGraded,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gradeAllResponse{
		JobID:  jobID.String(),
		Status: string(constants.JobStatusQueued),
		Total:  len(ids),
	})
}

// JobStatus returns the progress projection for one grading job.
func (h *GradingHandler) JobStatus(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid job id")
		return
	}
	view, err := h.scheduler.Status(c.Request.Context(), jobID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, view)
}

type adHocGradeRequest struct {
	Question    string                   `json:"question" binding:"required"`
	Answer      string                   `json:"answer" binding:"required"`
	SchoolLevel string                   `json:"school_level"`
	RubricID    *string                  `json:"rubric_id"`
	Criteria    []entity.RubricCriterion `json:"criteria"`
}

type gradeResponse struct {
	Record grading.Record `json:"record"`
	Grade  float64        `json:"grade"`
}

// GradeAdHoc grades a question/answer pair inline without touching stored
// submissions. Criteria come inline or from a stored rubric.
func (h *GradingHandler) GradeAdHoc(c *gin.Context) {
	var req adHocGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "question and answer are required")
		return
	}

	criteria, err := h.resolveCriteria(c, req.RubricID, req.Criteria)
	if err != nil {
		RespondError(c, err)
		return
	}

	rec, grade, err := h.grader.Grade(c.Request.Context(), worker.GradeRequest{
		Question:      req.Question,
		StudentAnswer: req.Answer,
		Criteria:      criteria,
		SchoolLevel:   schoolLevel(req.SchoolLevel),
	})
	if err != nil {
		h.log.Error("adhoc grading failed", "error", err)
		RespondError(c, common.NewAppError("GRADING_FAILED", "grading request failed", err))
		return
	}
	RespondOK(c, gradeResponse{Record: rec, Grade: grade})
}

type evaluateRequest struct {
	Question    string `json:"question" binding:"required"`
	Answer      string `json:"answer" binding:"required"`
	Criterion   string `json:"criterion" binding:"required"`
	SchoolLevel string `json:"school_level"`
}

type evaluateResponse struct {
	Evaluation string `json:"evaluation"`
	Score      *int   `json:"score"`
}

// EvaluateCriterion runs a free-text evaluation of the answer against one
// criterion. Score is null when none could be parsed from the response.
func (h *GradingHandler) EvaluateCriterion(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "question, answer and criterion are required")
		return
	}

	evaluation, score, err := h.grader.EvaluateCriterion(c.Request.Context(),
		req.Question, req.Answer, req.Criterion, schoolLevel(req.SchoolLevel))
	if err != nil {
		h.log.Error("criterion evaluation failed", "criterion", req.Criterion, "error", err)
		RespondError(c, common.NewAppError("EVALUATION_FAILED", "evaluation request failed", err))
		return
	}
	RespondOK(c, evaluateResponse{Evaluation: evaluation, Score: score})
}

type gradeSubmissionRequest struct {
	RubricID    *string `json:"rubric_id"`
	SchoolLevel string  `json:"school_level"`
}

type gradeSubmissionResponse struct {
	SubmissionID string         `json:"submission_id"`
	Record       grading.Record `json:"record"`
	Grade        float64        `json:"grade"`
}

// GradeSubmission grades one stored submission inline and persists the grade.
func (h *GradingHandler) GradeSubmission(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid submission id")
		return
	}

	var req gradeSubmissionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}

	sub, err := h.subs.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	criteria, err := h.resolveCriteria(c, req.RubricID, nil)
	if err != nil {
		RespondError(c, err)
		return
	}

	rec, grade, err := h.grader.Grade(c.Request.Context(), worker.GradeRequest{
		Question:      sub.Question,
		StudentAnswer: sub.Answer,
		Criteria:      criteria,
		SchoolLevel:   schoolLevel(req.SchoolLevel),
	})
	if err != nil {
		h.log.Error("submission grading failed", "submission_id", id, "error", err)
		RespondError(c, common.NewAppError("GRADING_FAILED", "grading request failed", err))
		return
	}
	if err := h.subs.UpdateGrade(c.Request.Context(), id, grade, rec.Feedback); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gradeSubmissionResponse{SubmissionID: id.String(), Record: rec, Grade: grade})
}

// Gradebook streams the assignment's XLSX gradebook.
func (h *GradingHandler) Gradebook(c *gin.Context) {
	assignmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "invalid assignment id")
		return
	}
	data, err := h.export.GradebookXLSX(c.Request.Context(), assignmentID)
	if err != nil {
		RespondError(c, err)
		return
	}
	filename := fmt.Sprintf("gradebook-%s.xlsx", assignmentID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *GradingHandler) resolveCriteria(c *gin.Context, rubricID *string, inline []entity.RubricCriterion) ([]entity.RubricCriterion, error) {
	if len(inline) > 0 {
		return inline, nil
	}
	id, err := parseOptionalUUID(rubricID)
	if err != nil {
		return nil, common.NewAppError("INVALID_RUBRIC_ID", "invalid rubric id", common.ErrInvalidInput)
	}
	if id == nil {
		return nil, nil
	}
	return h.rubrics.GetCriteria(c.Request.Context(), *id)
}

func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func schoolLevel(s string) string {
	if s == "" {
		return constants.DefaultSchoolLevel
	}
	return s
}
