package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/aigrader/aigrader/internal/export"
	"github.com/aigrader/aigrader/internal/repository"
	"github.com/aigrader/aigrader/internal/scheduler"
	"github.com/aigrader/aigrader/internal/worker"
)

// RouterConfig wires the handlers' collaborators.
type RouterConfig struct {
	Scheduler   *scheduler.Scheduler
	Grader      *worker.Grader
	Submissions repository.SubmissionRepository
	Rubrics     repository.RubricRepository
	Export      *export.Service
	Logger      *slog.Logger
}

// NewRouter builds the JSON API surface. Grading runs in the background; the
// only contract polling clients need is GET /api/grading-jobs/:id.
func NewRouter(cfg RouterConfig) *gin.Engine {
	h := &GradingHandler{
		scheduler: cfg.Scheduler,
		grader:    cfg.Grader,
		subs:      cfg.Submissions,
		rubrics:   cfg.Rubrics,
		export:    cfg.Export,
		log:       cfg.Logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.Health)

	api := router.Group("/api")
	{
		api.POST("/grade", h.GradeAdHoc)
		api.POST("/evaluate", h.EvaluateCriterion)
		api.POST("/submissions/:id/grade", h.GradeSubmission)
		api.POST("/assignments/:id/grade-all", h.GradeAll)
		api.GET("/grading-jobs/:id", h.JobStatus)
		api.GET("/assignments/:id/gradebook.xlsx", h.Gradebook)
	}

	return router
}
