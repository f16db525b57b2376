// Package synthesis produces and refines FAQ group answers from member
// questions and their source email context.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"faqminer/internal/ai"
	"faqminer/internal/models"

	"github.com/rs/zerolog"
)

const (
	maxContextEmails = 5
	maxContextRunes  = 1200
)

// Store is the persistence the synthesizer reads groups and context from
type Store interface {
	GetGroup(ctx context.Context, id int64) (*models.FAQGroup, error)
	ListGroupQuestions(ctx context.Context, groupID int64) ([]models.Question, error)
	GetEmail(ctx context.Context, id int64) (*models.Email, error)
	UpdateGroupAnswer(ctx context.Context, groupID int64, answer string) error
}

// Synthesizer writes one answer per FAQ group. It runs after clustering settles
// for a batch, not per question.
type Synthesizer struct {
	store Store
	tc    ai.TextCompletion
	log   zerolog.Logger
}

// New creates a synthesizer
func New(store Store, tc ai.TextCompletion, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		store: store,
		tc:    tc,
		log:   logger.With().Str("component", "synthesizer").Logger(),
	}
}

// SynthesizeGroup regenerates the answer for one group from its member questions
// and a sample of their source email bodies. A capability failure keeps the
// previous answer and is reported back for tallying, never escalated.
func (s *Synthesizer) SynthesizeGroup(ctx context.Context, groupID int64) error {
	questions, err := s.store.ListGroupQuestions(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to load group questions: %w", err)
	}
	if len(questions) == 0 {
		return nil
	}

	texts := make([]string, 0, len(questions))
	for _, q := range questions {
		texts = append(texts, q.Text)
	}

	contexts := s.collectContexts(ctx, questions)

	answer, err := s.tc.SynthesizeAnswer(ctx, texts, contexts)
	if err != nil {
		s.log.Warn().Int64("group_id", groupID).Err(err).Msg("answer synthesis failed, keeping previous answer")
		return err
	}
	if strings.TrimSpace(answer) == "" {
		// Never replace an existing answer with nothing
		return nil
	}

	if err := s.store.UpdateGroupAnswer(ctx, groupID, answer); err != nil {
		return fmt.Errorf("failed to store answer: %w", err)
	}

	s.log.Info().Int64("group_id", groupID).Int("questions", len(questions)).Msg("group answer synthesized")
	return nil
}

// Improve refines an existing answer given additional context questions. An
// empty answer with no context is a no-op.
func (s *Synthesizer) Improve(ctx context.Context, answer string, contextQuestions []string) (string, error) {
	if strings.TrimSpace(answer) == "" && len(contextQuestions) == 0 {
		return "", nil
	}

	contexts := []string{}
	if strings.TrimSpace(answer) != "" {
		contexts = append(contexts, "Current answer:\n"+answer)
	}

	improved, err := s.tc.SynthesizeAnswer(ctx, contextQuestions, contexts)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(improved) == "" {
		return answer, nil
	}
	return improved, nil
}

// collectContexts samples source email bodies for the group's questions. Missing
// emails are skipped; context is best-effort.
func (s *Synthesizer) collectContexts(ctx context.Context, questions []models.Question) []string {
	seen := make(map[int64]struct{})
	var contexts []string

	for _, q := range questions {
		if len(contexts) >= maxContextEmails {
			break
		}
		if _, ok := seen[q.SourceEmailID]; ok {
			continue
		}
		seen[q.SourceEmailID] = struct{}{}

		email, err := s.store.GetEmail(ctx, q.SourceEmailID)
		if err != nil {
			s.log.Debug().Int64("email_id", q.SourceEmailID).Err(err).Msg("source email unavailable for context")
			continue
		}

		body := email.BodyText
		if runes := []rune(body); len(runes) > maxContextRunes {
			body = string(runes[:maxContextRunes])
		}
		if strings.TrimSpace(body) != "" {
			contexts = append(contexts, body)
		}
	}

	return contexts
}
