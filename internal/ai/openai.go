package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	faqopenai "faqminer/internal/openai"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const extractSystemPrompt = `You analyze customer support emails. Extract every distinct question the customer is asking.
Respond with JSON only, in this exact shape:
{"questions":[{"question":"...","confidence":0.0,"category":"..."}]}
Rules:
- "question" is a cleaned-up, self-contained phrasing of what the customer asked.
- "confidence" is between 0 and 1: how certain you are this is a real support question.
- "category" is a short topic label such as "Shipping", "Billing" or "Account".
- If the email contains no questions, respond with {"questions":[]}.`

const synthesizeSystemPrompt = `You write FAQ answers for a customer support page.
Given a set of equivalent customer questions and excerpts from the email threads they came from,
write one clear, helpful answer. Answer directly, without greetings or sign-offs.
If the provided material is not enough to answer, respond with an empty string.`

// OpenAICapability implements TextCompletion and Embedder on the unified
// Azure/OpenAI client
type OpenAICapability struct {
	client  *faqopenai.Client
	timeout time.Duration
	log     zerolog.Logger
}

// NewOpenAICapability wraps the unified client with the pipeline's per-call timeout
func NewOpenAICapability(client *faqopenai.Client, timeout time.Duration, logger zerolog.Logger) *OpenAICapability {
	return &OpenAICapability{
		client:  client,
		timeout: timeout,
		log:     logger.With().Str("component", "ai_capability").Logger(),
	}
}

type extractPayload struct {
	Questions []Candidate `json:"questions"`
}

// ExtractQuestions asks the text model for candidate questions in the email body
func (c *OpenAICapability) ExtractQuestions(ctx context.Context, body string) ([]Candidate, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: extractSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: body},
	}

	resp, err := c.client.CreateChatCompletion(ctx, messages, 1024, 0.1)
	if err != nil {
		return nil, fmt.Errorf("question extraction call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("question extraction returned no choices")
	}

	candidates, err := ParseExtraction(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	return candidates, nil
}

// ParseExtraction decodes the model's JSON payload into candidates, tolerating
// markdown code fences and clamping confidences into [0,1]
func ParseExtraction(content string) ([]Candidate, error) {
	cleaned := stripCodeFences(content)

	var payload extractPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("malformed extraction payload: %w", err)
	}

	candidates := make([]Candidate, 0, len(payload.Questions))
	for _, cand := range payload.Questions {
		cand.Text = strings.TrimSpace(cand.Text)
		if cand.Text == "" {
			continue
		}
		if cand.Confidence < 0 {
			cand.Confidence = 0
		}
		if cand.Confidence > 1 {
			cand.Confidence = 1
		}
		cand.Category = strings.TrimSpace(cand.Category)
		candidates = append(candidates, cand)
	}

	return candidates, nil
}

// SynthesizeAnswer writes one FAQ answer from member questions and email context
func (c *OpenAICapability) SynthesizeAnswer(ctx context.Context, questions []string, contexts []string) (string, error) {
	if len(questions) == 0 && len(contexts) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var input strings.Builder
	input.WriteString("Customer questions:\n")
	for _, q := range questions {
		input.WriteString("- ")
		input.WriteString(q)
		input.WriteString("\n")
	}
	if len(contexts) > 0 {
		input.WriteString("\nEmail thread excerpts:\n")
		for _, c := range contexts {
			input.WriteString("---\n")
			input.WriteString(c)
			input.WriteString("\n")
		}
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: synthesizeSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: input.String()},
	}

	resp, err := c.client.CreateChatCompletion(ctx, messages, 768, 0.3)
	if err != nil {
		return "", fmt.Errorf("answer synthesis call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("answer synthesis returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Vectorize embeds a single text
func (c *OpenAICapability) Vectorize(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	embeddings, err := c.client.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding call returned no vectors")
	}

	vector := make([]float64, len(embeddings[0]))
	for i, v := range embeddings[0] {
		vector[i] = float64(v)
	}

	return vector, nil
}

// stripCodeFences removes a surrounding markdown code fence if present
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
