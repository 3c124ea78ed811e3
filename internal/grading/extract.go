package grading

import (
	"regexp"
	"strconv"
	"strings"
)

// SectionPlaceholder is returned when no section matching the keywords can be
// found in the model's text.
const SectionPlaceholder = "Information not explicitly provided in the feedback."

var (
	reGradeOver100 = regexp.MustCompile(`(\d+)/100`)
	reGradeKey     = regexp.MustCompile(`(?i)grade[\s:]+([\d.]+)`)
	reBareNumber   = regexp.MustCompile(`\b([0-9]{1,2}|100)\b`)

	reScoreOverMax = regexp.MustCompile(`(\d+)\s*/\s*\d+`)
	reScoreKey     = regexp.MustCompile(`(?i)score[:\s]+(\d+)`)

	reGradeString = regexp.MustCompile(`^\d+(\.\d+)?$`)
	reSentence    = regexp.MustCompile(`[^.!?]*[.!?]`)
)

// sectionMarkers terminate a heading-delimited section during extraction.
var sectionMarkers = []string{"feedback:", "grade:", "summary:", "glow:", "grow:", "think:", "rubric:"}

// ExtractGrade pulls a numeric grade out of free text. Heuristics are applied
// in a fixed order, first match wins:
//
//  1. "<n>/100" -> n
//  2. "grade: <n>" (case-insensitive, separator optional) -> n
//  3. any standalone integer in [0,100] -> that integer
//
// The same input always takes the same branch.
func ExtractGrade(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	if m := reGradeOver100.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return v, true
		}
	}
	if m := reGradeKey.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return v, true
		}
	}
	if m := reBareNumber.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

// ParseGradeString interprets the grade field of a grading record: either the
// "<score>/100" form or a bare number string.
func ParseGradeString(grade string) (float64, bool) {
	s := strings.TrimSpace(grade)
	if s == "" {
		return 0, false
	}
	if num, _, found := strings.Cut(s, "/"); found {
		v, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err == nil {
			return v, true
		}
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return v, true
	}
	return 0, false
}

// ParseScore extracts an integer score from a per-criterion evaluation:
// "<n>/<m>" first, then "score: <n>".
func ParseScore(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	if m := reScoreOverMax.FindStringSubmatch(text); m != nil {
		v, err := strconv.Atoi(m[1])
		if err == nil {
			return v, true
		}
	}
	if m := reScoreKey.FindStringSubmatch(text); m != nil {
		v, err := strconv.Atoi(m[1])
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

// ExtractSection scans text for a heading line containing any of the keywords
// and collects the non-empty lines that follow until the next section marker.
// If no heading matches, it falls back to concatenating whole sentences that
// mention a keyword. Returns SectionPlaceholder when nothing is found.
func ExtractSection(text string, keywords ...string) string {
	if text == "" {
		return SectionPlaceholder
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lineLower := strings.ToLower(line)
		for _, kw := range keywords {
			if !strings.Contains(lineLower, strings.ToLower(kw)) || i >= len(lines)-1 {
				continue
			}
			var section []string
			for j := i + 1; j < len(lines) && !containsMarker(lines[j]); j++ {
				if strings.TrimSpace(lines[j]) != "" {
					section = append(section, lines[j])
				}
			}
			if len(section) > 0 {
				return strings.TrimSpace(strings.Join(section, " "))
			}
		}
	}

	// No heading hit; look for whole sentences mentioning a keyword.
	textLower := strings.ToLower(text)
	for _, kw := range keywords {
		var matches []string
		for _, sentence := range reSentence.FindAllString(textLower, -1) {
			if containsWord(sentence, strings.ToLower(kw)) {
				matches = append(matches, strings.TrimSpace(sentence))
			}
		}
		if len(matches) > 0 {
			return capitalize(strings.Join(matches, " "))
		}
	}

	return SectionPlaceholder
}

func containsMarker(line string) bool {
	lower := strings.ToLower(line)
	for _, m := range sectionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func containsWord(sentence, word string) bool {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(sentence)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
