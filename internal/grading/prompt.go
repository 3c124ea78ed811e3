package grading

import (
	"encoding/json"
	"strings"

	"github.com/aigrader/aigrader/constants"
	"github.com/aigrader/aigrader/internal/entity"
)

// PromptRequest carries everything a grading prompt is built from.
type PromptRequest struct {
	Question      string
	StudentAnswer string
	Criteria      []entity.RubricCriterion
	SchoolLevel   string
}

// BuildGradingPrompt composes the grading instruction sent to the gateway.
// The response-format section names the exact keys the normalizer repairs
// toward, so even partially obedient models land close to the schema.
func BuildGradingPrompt(req PromptRequest) string {
	level := strings.TrimSpace(req.SchoolLevel)
	if level == "" {
		level = constants.DefaultSchoolLevel
	}

	criteriaText := "No specific rubric provided"
	if len(req.Criteria) > 0 {
		if b, err := json.MarshalIndent(req.Criteria, "", "  "); err == nil {
			criteriaText = string(b)
		}
	}

	var b strings.Builder
	b.WriteString("You are an AI teaching assistant. Grade this student answer based on the provided rubric:\n\n")
	b.WriteString("Question: " + req.Question + "\n")
	b.WriteString("Student Answer: " + req.StudentAnswer + "\n\n")
	b.WriteString("Rubric Criteria for " + level + " Level:\n")
	b.WriteString(criteriaText + "\n\n")
	b.WriteString("Provide detailed feedback and a numerical grade between 0-100.\n")
	b.WriteString("Format your response as a JSON object with the following keys:\n")
	b.WriteString("- feedback: [detailed feedback]\n")
	b.WriteString("- grade: [numerical grade as a string in format \"X/100\"]\n")
	b.WriteString("- summary: [brief summary of the feedback]\n")
	b.WriteString("- glow: [what the student did well]\n")
	b.WriteString("- grow: [areas for improvement]\n")
	b.WriteString("- think_about_it: [questions to ponder for improvement]\n")
	b.WriteString("- rubric: [detailed rubric breakdown with scores and explanations]\n\n")
	b.WriteString("IMPORTANT GRADING INSTRUCTIONS:\n")
	b.WriteString("1. If the student's answer is completely unrelated to the question, assign 0 marks and provide appropriate feedback.\n")
	b.WriteString("2. If the content appears to be AI-generated, deduct marks appropriately and mention this concern in your feedback.\n")
	b.WriteString("3. Return ONLY the JSON object with no markdown formatting, no backticks, and no code blocks.\n\n")
	b.WriteString("Your entire response must be a valid JSON object that can be directly parsed.")
	return b.String()
}

// BuildCriterionPrompt composes the prompt for a single-criterion evaluation.
// The response is free text scored with ParseScore.
func BuildCriterionPrompt(question, answer, criterion, schoolLevel string) string {
	level := strings.TrimSpace(schoolLevel)
	if level == "" {
		level = constants.DefaultSchoolLevel
	}
	var b strings.Builder
	b.WriteString("Evaluate this student response for the criterion: \"" + criterion + "\"\n\n")
	b.WriteString("Question: " + question + "\n")
	b.WriteString("Student Answer: " + answer + "\n")
	b.WriteString("School Level: " + level + "\n\n")
	b.WriteString("Provide a score out of 100 and brief explanation.")
	return b.String()
}
