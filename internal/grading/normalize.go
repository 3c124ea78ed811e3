package grading

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aigrader/aigrader/constants"
)

// NotProvided fills any grading-record key the model omitted.
const NotProvided = "Not provided in AI response."

// Record is the structured grading record every normalization produces.
// All seven fields are populated after Normalize returns.
type Record struct {
	Feedback     string            `json:"feedback"`
	Grade        string            `json:"grade"`
	Summary      string            `json:"summary"`
	Glow         string            `json:"glow"`
	Grow         string            `json:"grow"`
	ThinkAboutIt string            `json:"think_about_it"`
	Rubric       map[string]string `json:"rubric"`
}

// Stage identifies which repair stage produced a record.
type Stage string

const (
	StageEmbeddedJSON Stage = "embedded_json" // first {...} span parsed
	StageWholeJSON    Stage = "whole_json"    // stripped text parsed as-is
	StageKeyValue     Stage = "key_value"     // line-oriented key: value recovery
	StageWrapped      Stage = "wrapped"       // whole text wrapped as feedback
)

// Result pairs the repaired record with the stage that produced it.
type Result struct {
	Record Record
	Stage  Stage
}

var (
	reFences   = regexp.MustCompile("```json\\s*|\\s*```|`")
	reKeyValue = regexp.MustCompile(`(?i)^(feedback|grade|summary|glow|grow|think_about_it|rubric):(.*)$`)
)

// Normalize repairs a raw provider response into a Record. It never fails:
// stages are attempted in order and the last resort wraps the whole text as
// feedback with a default grade.
func Normalize(raw string) Result {
	stripped := strings.TrimSpace(reFences.ReplaceAllString(strings.TrimSpace(raw), ""))

	if span, ok := firstObjectSpan(stripped); ok {
		if m, ok := parseRecordObject(span); ok {
			return finish(m, StageEmbeddedJSON)
		}
	}
	if m, ok := parseRecordObject(stripped); ok {
		return finish(m, StageWholeJSON)
	}
	if m, ok := recoverKeyValues(stripped); ok {
		return finish(m, StageKeyValue)
	}
	return finish(map[string]any{
		"feedback": stripped,
		"grade":    constants.DefaultGradeString,
	}, StageWrapped)
}

// firstObjectSpan returns the text between the first '{' and the last '}'
// (greedy), mirroring how a JSON object is usually sandwiched in prose.
func firstObjectSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// parseRecordObject attempts a strict parse: valid JSON object whose known
// keys carry sane types, enforced by the grading-record schema.
func parseRecordObject(text string) (map[string]any, bool) {
	data := []byte(text)
	if err := ValidateJSONAgainstSchema(BuildGradingRecordSchema(), data); err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	return m, true
}

// recoverKeyValues scans line-by-line for "key: value" openings and appends
// subsequent non-empty, non-matching lines to the currently open field.
func recoverKeyValues(text string) (map[string]any, bool) {
	result := map[string]any{}
	currentKey := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := reKeyValue.FindStringSubmatch(line); m != nil {
			currentKey = strings.ToLower(m[1])
			result[currentKey] = strings.TrimSpace(m[2])
			continue
		}
		if currentKey != "" {
			prev, _ := result[currentKey].(string)
			result[currentKey] = strings.TrimSpace(prev + " " + line)
		}
	}
	if len(result) == 0 {
		return nil, false
	}
	return result, true
}

// finish applies the post-processing invariant: every required key present,
// grade rewritten to "<score>/100" when numeric.
func finish(m map[string]any, stage Stage) Result {
	rec := Record{
		Feedback:     stringField(m, "feedback"),
		Grade:        gradeField(m),
		Summary:      stringField(m, "summary"),
		Glow:         stringField(m, "glow"),
		Grow:         stringField(m, "grow"),
		ThinkAboutIt: stringField(m, "think_about_it"),
		Rubric:       rubricField(m),
	}
	return Result{Record: rec, Stage: stage}
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return NotProvided
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatNumber(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return NotProvided
		}
		return string(b)
	}
}

func gradeField(m map[string]any) string {
	v, ok := m["grade"]
	if !ok || v == nil {
		return NotProvided
	}
	switch t := v.(type) {
	case float64:
		return formatNumber(t) + "/100"
	case string:
		s := strings.TrimSpace(t)
		if reGradeString.MatchString(s) {
			return s + "/100"
		}
		if s == "" {
			return NotProvided
		}
		return s
	default:
		return NotProvided
	}
}

func rubricField(m map[string]any) map[string]string {
	v, ok := m["rubric"]
	if !ok || v == nil {
		return DefaultRubric()
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, val := range t {
			switch s := val.(type) {
			case string:
				out[k] = s
			default:
				b, err := json.Marshal(s)
				if err != nil {
					continue
				}
				out[k] = string(b)
			}
		}
		if len(out) == 0 {
			return DefaultRubric()
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return DefaultRubric()
		}
		return map[string]string{"Overall": t}
	default:
		return DefaultRubric()
	}
}

// DefaultRubric is the rubric breakdown used when the model provided none.
func DefaultRubric() map[string]string {
	return map[string]string{"Overall": "Assessment included in general feedback."}
}

// FallbackRecord is persisted for a submission whose grading failed outright
// (gateway error or any per-item exception). The batch continues afterwards.
func FallbackRecord(cause error) Record {
	return Record{
		Feedback:     fmt.Sprintf("Unable to grade submission: %v", cause),
		Grade:        constants.DefaultGradeString,
		Summary:      "Grading failed due to an error.",
		Glow:         "Good effort on this assignment.",
		Grow:         "Continue developing your ideas.",
		ThinkAboutIt: NotProvided,
		Rubric:       DefaultRubric(),
	}
}

func formatNumber(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}
