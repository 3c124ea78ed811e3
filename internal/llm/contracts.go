package llm

import "context"

// Gateway is the text-generation provider abstraction the grading pipeline
// depends on. The returned string is arbitrary model text (prose, markdown
// fences, valid or partial JSON) and is repaired downstream. Implementations
// never retry inline; retry policy belongs to an outer scheduling layer.
type Gateway interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
