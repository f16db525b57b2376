// Package quality scores extracted question text. Scoring is deterministic and
// local; nothing here makes an external call.
package quality

import "strings"

// Threshold is the minimum score for a question to be persisted
const Threshold = 0.5

// Interrogative words that mark question structure when they lead the text
var interrogativeLeads = map[string]struct{}{
	"how": {}, "what": {}, "why": {}, "when": {}, "where": {}, "who": {},
	"which": {}, "can": {}, "could": {}, "do": {}, "does": {}, "did": {},
	"is": {}, "are": {}, "will": {}, "would": {}, "should": {},
}

// Result is the outcome of validating one piece of question text
type Result struct {
	IsValid bool    `json:"is_valid"`
	Score   float64 `json:"score"`
}

// Validate scores question text between 0 and 1 and accepts it when the score
// reaches the threshold.
//
// The score combines token length, interrogative structure and the presence of
// content-bearing words. Greeting-only or boilerplate-only text is capped well
// below the threshold.
func Validate(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{IsValid: false, Score: 0}
	}

	tokens := tokenize(trimmed)
	if len(tokens) == 0 {
		return Result{IsValid: false, Score: 0}
	}

	var score float64

	// Length: single-word inputs such as "help" earn nothing here
	switch {
	case len(tokens) >= 4:
		score += 0.3
	case len(tokens) == 3:
		score += 0.2
	case len(tokens) == 2:
		score += 0.1
	}

	// Interrogative structure
	if strings.Contains(trimmed, "?") {
		score += 0.25
	}
	if _, ok := interrogativeLeads[tokens[0]]; ok {
		score += 0.25
	}

	// Content-bearing words beyond greetings and stopwords
	meaningful := meaningfulTokens(tokens)
	if len(meaningful) >= 2 {
		score += 0.2
	}
	if len(meaningful) == 0 {
		// Greeting-only or boilerplate-only text
		if score > 0.2 {
			score = 0.2
		}
	}

	if score > 1 {
		score = 1
	}

	return Result{IsValid: score >= Threshold, Score: score}
}
