// Package ai defines the abstract text-completion and embedding capabilities the
// mining pipeline depends on, plus the OpenAI-backed implementation.
package ai

import "context"

// Candidate is one question pulled out of an email body
type Candidate struct {
	Text       string  `json:"question"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
}

// TextCompletion is the abstract text model the extractor and synthesizer call.
//
// Implementations return an error on transport/parse failure; callers treat the
// error as "no result", tally it and continue, so a capability failure never
// aborts a batch.
type TextCompletion interface {
	// ExtractQuestions pulls candidate customer questions out of an email body.
	// An empty body yields an empty result without a call.
	ExtractQuestions(ctx context.Context, body string) ([]Candidate, error)

	// SynthesizeAnswer produces an answer for a group of equivalent questions
	// given surrounding email context. Returns "" when there is nothing to
	// synthesize from.
	SynthesizeAnswer(ctx context.Context, questions []string, contexts []string) (string, error)
}

// Embedder is the abstract embedding capability.
type Embedder interface {
	// Vectorize returns a fixed-length embedding for the text, or nil for empty
	// input. A nil vector with a non-nil error means "not yet clusterable", not
	// a fatal condition.
	Vectorize(ctx context.Context, text string) ([]float64, error)
}
