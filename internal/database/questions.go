package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"faqminer/internal/models"
)

const questionColumns = `id, source_email_id, text, text_hash, confidence, category,
	embedding, sender_email, sender_name, created_at`

// InsertQuestion stores an extracted question. The (source_email_id, text_hash)
// uniqueness constraint makes re-extraction of the same email a no-op; the return
// value reports whether a new row was written.
func (s *Store) InsertQuestion(ctx context.Context, question *models.Question) (bool, error) {
	query := `
		INSERT INTO questions (source_email_id, text, text_hash, confidence, category,
			sender_email, sender_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_email_id, text_hash) DO NOTHING
		RETURNING id
	`

	err := s.db.GetContext(ctx, &question.ID, query,
		question.SourceEmailID, question.Text, question.TextHash, question.Confidence,
		question.Category, question.SenderEmail, question.SenderName)
	if errors.Is(err, sql.ErrNoRows) {
		// Already extracted from this email
		existing := `SELECT id FROM questions WHERE source_email_id = $1 AND text_hash = $2`
		if err := s.db.GetContext(ctx, &question.ID, existing, question.SourceEmailID, question.TextHash); err != nil {
			return false, fmt.Errorf("failed to load existing question: %w", err)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert question: %w", err)
	}

	return true, nil
}

// SetQuestionEmbedding persists the embedding vector for a question
func (s *Store) SetQuestionEmbedding(ctx context.Context, questionID int64, embedding []float64) error {
	encoded, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	query := `UPDATE questions SET embedding = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, string(encoded), questionID); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// ListUnclusteredQuestions returns questions that are not yet members of any FAQ
// group, oldest first. Questions without embeddings are included so a later pass
// can vectorize them.
func (s *Store) ListUnclusteredQuestions(ctx context.Context, limit int) ([]models.Question, error) {
	query := `
		SELECT ` + questionColumns + `
		FROM questions q
		WHERE NOT EXISTS (
			SELECT 1 FROM question_group_memberships m WHERE m.question_id = q.id
		)
		ORDER BY q.created_at
		LIMIT $1
	`
	return s.selectQuestions(ctx, query, limit)
}

// ListGroupQuestions returns the member questions of an FAQ group, oldest first
func (s *Store) ListGroupQuestions(ctx context.Context, groupID int64) ([]models.Question, error) {
	query := `
		SELECT ` + questionColumns + `
		FROM questions q
		WHERE EXISTS (
			SELECT 1 FROM question_group_memberships m
			WHERE m.question_id = q.id AND m.group_id = $1
		)
		ORDER BY q.created_at
	`
	return s.selectQuestions(ctx, query, groupID)
}

func (s *Store) selectQuestions(ctx context.Context, query string, args ...interface{}) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Warn().Err(err).Msg("error closing rows")
		}
	}()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		var embedding sql.NullString

		err := rows.Scan(&q.ID, &q.SourceEmailID, &q.Text, &q.TextHash, &q.Confidence,
			&q.Category, &embedding, &q.SenderEmail, &q.SenderName, &q.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}

		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &q.Embedding); err != nil {
				s.log.Warn().Int64("question_id", q.ID).Err(err).Msg("invalid stored embedding, skipping")
				q.Embedding = nil
			}
		}

		questions = append(questions, q)
	}

	return questions, rows.Err()
}
