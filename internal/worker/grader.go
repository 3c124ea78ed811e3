package worker

import (
	"context"
	"log/slog"

	"github.com/aigrader/aigrader/constants"
	"github.com/aigrader/aigrader/internal/entity"
	"github.com/aigrader/aigrader/internal/grading"
	"github.com/aigrader/aigrader/internal/llm"
)

// GradeRequest carries one submission's worth of grading input.
type GradeRequest struct {
	Question      string
	StudentAnswer string
	Criteria      []entity.RubricCriterion
	SchoolLevel   string
}

// Grader turns a single answer into a grading record and numeric grade. It is
// shared by the batch worker and the synchronous grading endpoints.
type Grader struct {
	gateway llm.Gateway
	log     *slog.Logger
}

func NewGrader(gateway llm.Gateway, log *slog.Logger) *Grader {
	if log == nil {
		log = slog.Default()
	}
	return &Grader{gateway: gateway, log: log}
}

// Grade calls the gateway and repairs its output into a Record. On gateway
// failure it returns the fallback record with the default grade along with
// the error, so callers always have something persistable.
func (g *Grader) Grade(ctx context.Context, req GradeRequest) (grading.Record, float64, error) {
	prompt := grading.BuildGradingPrompt(grading.PromptRequest{
		Question:      req.Question,
		StudentAnswer: req.StudentAnswer,
		Criteria:      req.Criteria,
		SchoolLevel:   req.SchoolLevel,
	})

	raw, err := g.gateway.Generate(ctx, prompt)
	if err != nil {
		g.log.Error("grading.generate_failed", "error", err)
		return grading.FallbackRecord(err), constants.DefaultGrade, err
	}

	res := grading.Normalize(raw)
	g.log.Info("grading.normalized", "stage", res.Stage, "raw_len", len(raw))
	return res.Record, GradeValue(res.Record, raw), nil
}

// EvaluateCriterion runs the free-text single-criterion evaluation and scores
// it with the ordered score heuristics.
func (g *Grader) EvaluateCriterion(ctx context.Context, question, answer, criterion, schoolLevel string) (string, *int, error) {
	prompt := grading.BuildCriterionPrompt(question, answer, criterion, schoolLevel)
	raw, err := g.gateway.Generate(ctx, prompt)
	if err != nil {
		g.log.Error("grading.criterion_failed", "criterion", criterion, "error", err)
		return "", nil, err
	}
	if score, ok := grading.ParseScore(raw); ok {
		return raw, &score, nil
	}
	return raw, nil, nil
}

// GradeValue extracts the numeric grade for a record: the record's grade
// field first ("X/100" or bare number), then the raw text heuristics, then
// the default.
func GradeValue(rec grading.Record, raw string) float64 {
	if v, ok := grading.ParseGradeString(rec.Grade); ok {
		return v
	}
	if v, ok := grading.ExtractGrade(raw); ok {
		return v
	}
	return constants.DefaultGrade
}
