package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		expectValid   bool
		expectedScore float64
	}{
		{
			name:          "empty text scores zero",
			text:          "",
			expectValid:   false,
			expectedScore: 0,
		},
		{
			name:          "whitespace-only text scores zero",
			text:          "   \n\t ",
			expectValid:   false,
			expectedScore: 0,
		},
		{
			name:          "single boilerplate word is rejected",
			text:          "help",
			expectValid:   false,
			expectedScore: 0,
		},
		{
			name:          "greeting is rejected",
			text:          "hi",
			expectValid:   false,
			expectedScore: 0,
		},
		{
			name:          "boilerplate-only phrase is capped below threshold",
			text:          "thanks for your help",
			expectValid:   false,
			expectedScore: 0.2,
		},
		{
			name:          "two content words without structure fall short",
			text:          "reset password",
			expectValid:   false,
			expectedScore: 0.3,
		},
		{
			name:          "full question scores the maximum",
			text:          "How do I reset my password for my account?",
			expectValid:   true,
			expectedScore: 1.0,
		},
		{
			name:          "question mark plus content",
			text:          "Can I change my shipping address?",
			expectValid:   true,
			expectedScore: 1.0,
		},
		{
			name:          "interrogative lead without question mark still passes",
			text:          "where is my order",
			expectValid:   true,
			expectedScore: 0.55,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.text)
			assert.Equal(t, tt.expectValid, result.IsValid)
			assert.InDelta(t, tt.expectedScore, result.Score, 0.001)
		})
	}
}

func TestValidateThresholdBoundary(t *testing.T) {
	// Length plus an interrogative lead is just enough on its own
	result := Validate("How do I login")
	assert.True(t, result.IsValid)
	assert.GreaterOrEqual(t, result.Score, Threshold)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"how", "do", "i", "reset"}, tokenize("How do I reset?"))
	assert.Equal(t, []string{"order", "12345"}, tokenize("order #12345"))
	assert.Empty(t, tokenize("!!!"))
}

func TestMeaningfulTokens(t *testing.T) {
	tokens := tokenize("hi please help me reset my password")
	assert.Equal(t, []string{"reset", "password"}, meaningfulTokens(tokens))
}
