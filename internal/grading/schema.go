package grading

// BuildGradingRecordSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. The normalizer's strict stages validate candidate objects
// against it before accepting them: known keys must carry sane types, but no
// key is required since missing keys are defaulted afterwards.
func BuildGradingRecordSchema() map[string]any {
	textProp := map[string]any{"type": "string"}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"feedback":       textProp,
			"summary":        textProp,
			"glow":           textProp,
			"grow":           textProp,
			"think_about_it": textProp,
			// Models return "82/100", "82", or a bare number.
			"grade": map[string]any{"type": []any{"string", "number"}},
			// Either a per-criterion breakdown or a single prose blob.
			"rubric": map[string]any{"type": []any{"object", "string"}},
		},
	}
}
