package quality

import (
	"regexp"
	"strings"
)

var (
	tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

	stopwords = map[string]struct{}{
		"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "can": {},
		"do": {}, "does": {}, "for": {}, "from": {}, "have": {}, "how": {}, "i": {},
		"im": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "need": {}, "of": {},
		"on": {}, "or": {}, "our": {}, "so": {}, "that": {}, "the": {}, "their": {},
		"them": {}, "there": {}, "these": {}, "they": {}, "this": {}, "those": {},
		"to": {}, "want": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {},
		"where": {}, "which": {}, "who": {}, "why": {}, "will": {}, "with": {},
		"would": {}, "you": {}, "your": {},
	}

	// Greeting and filler words that carry no question signal on their own
	boilerplate = map[string]struct{}{
		"hi": {}, "hello": {}, "hey": {}, "dear": {}, "thanks": {}, "thank": {},
		"thx": {}, "regards": {}, "cheers": {}, "best": {}, "sincerely": {},
		"help": {}, "please": {}, "ok": {}, "okay": {}, "yes": {}, "no": {},
		"urgent": {}, "asap": {},
	}
)

// tokenize lowercases text and splits it into alphanumeric runs
func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// meaningfulTokens returns tokens that are neither stopwords nor boilerplate
func meaningfulTokens(tokens []string) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStopword := stopwords[token]; isStopword {
			continue
		}
		if _, isBoilerplate := boilerplate[token]; isBoilerplate {
			continue
		}
		result = append(result, token)
	}
	return result
}
