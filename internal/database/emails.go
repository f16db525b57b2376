package database

import (
	"context"
	"fmt"

	"faqminer/internal/models"
)

// UpsertEmail stores an email, keyed by message id, and fills in its row id.
// Re-importing the same message is a no-op apart from updated_at.
func (s *Store) UpsertEmail(ctx context.Context, email *models.Email) error {
	query := `
		INSERT INTO emails (message_id, thread_id, sender_email, sender_name, subject,
			normalized_subject, body_text, received_at, direction, has_response,
			filtering_status, filtering_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (message_id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	err := s.db.GetContext(ctx, &email.ID, query,
		email.MessageID, email.ThreadID, email.SenderEmail, email.SenderName,
		email.Subject, email.NormalizedSubject, email.BodyText, email.ReceivedAt,
		email.Direction, email.HasResponse, email.FilteringStatus, email.FilteringReason)
	if err != nil {
		return fmt.Errorf("failed to upsert email: %w", err)
	}

	return nil
}

// GetEmail retrieves a single email by id
func (s *Store) GetEmail(ctx context.Context, id int64) (*models.Email, error) {
	var email models.Email
	query := `SELECT * FROM emails WHERE id = $1`
	if err := s.db.GetContext(ctx, &email, query, id); err != nil {
		return nil, fmt.Errorf("failed to get email %d: %w", id, err)
	}
	return &email, nil
}

// UpdateClassification persists the four fields the eligibility classifier owns.
// When an email becomes qualified it is requeued for mining.
func (s *Store) UpdateClassification(ctx context.Context, email *models.Email) error {
	query := `
		UPDATE emails
		SET direction = $1,
			has_response = $2,
			filtering_status = $3,
			filtering_reason = $4,
			processed_at = CASE
				WHEN $3 = 'qualified' AND filtering_status <> 'qualified' THEN NULL
				ELSE processed_at
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $5
	`

	_, err := s.db.ExecContext(ctx, query,
		email.Direction, email.HasResponse, email.FilteringStatus, email.FilteringReason, email.ID)
	if err != nil {
		return fmt.Errorf("failed to update email classification: %w", err)
	}

	return nil
}

// ListThreadPeers returns the other emails in the same thread, ordered by receipt time.
// Falls back to normalized-subject matching when the email has no thread id.
func (s *Store) ListThreadPeers(ctx context.Context, email *models.Email) ([]models.Email, error) {
	var peers []models.Email
	var err error

	if email.ThreadID != nil && *email.ThreadID != "" {
		query := `SELECT * FROM emails WHERE thread_id = $1 AND id <> $2 ORDER BY received_at`
		err = s.db.SelectContext(ctx, &peers, query, *email.ThreadID, email.ID)
	} else {
		query := `SELECT * FROM emails WHERE normalized_subject = $1 AND id <> $2 ORDER BY received_at`
		err = s.db.SelectContext(ctx, &peers, query, email.NormalizedSubject, email.ID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list thread peers: %w", err)
	}
	return peers, nil
}

// ListUnprocessed returns emails that have not yet been run through the mining
// pipeline, oldest first
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]models.Email, error) {
	var emails []models.Email
	query := `
		SELECT * FROM emails
		WHERE processed_at IS NULL
		ORDER BY received_at
		LIMIT $1
	`
	if err := s.db.SelectContext(ctx, &emails, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list unprocessed emails: %w", err)
	}
	return emails, nil
}

// ListEmailsPage pages through all emails by ascending id, for backfill re-scans
func (s *Store) ListEmailsPage(ctx context.Context, afterID int64, limit int) ([]models.Email, error) {
	var emails []models.Email
	query := `SELECT * FROM emails WHERE id > $1 ORDER BY id LIMIT $2`
	if err := s.db.SelectContext(ctx, &emails, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("failed to page emails: %w", err)
	}
	return emails, nil
}

// MarkProcessed stamps an email as having completed the mining pipeline
func (s *Store) MarkProcessed(ctx context.Context, emailID int64) error {
	query := `UPDATE emails SET processed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, emailID); err != nil {
		return fmt.Errorf("failed to mark email processed: %w", err)
	}
	return nil
}
