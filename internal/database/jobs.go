package database

import (
	"context"
	"fmt"

	"faqminer/internal/models"
)

// CreateJob enqueues a new processing job in the pending state
func (s *Store) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	query := `
		INSERT INTO processing_jobs (id, type, status)
		VALUES ($1, $2, 'pending')
		RETURNING created_at
	`
	if err := s.db.GetContext(ctx, &job.CreatedAt, query, job.ID, job.Type); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	job.Status = models.JobStatusPending
	return nil
}

// GetJob retrieves a processing job by id
func (s *Store) GetJob(ctx context.Context, id string) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	query := `SELECT * FROM processing_jobs WHERE id = $1`
	if err := s.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

// ListRecentJobs returns the most recently created jobs
func (s *Store) ListRecentJobs(ctx context.Context, limit int) ([]models.ProcessingJob, error) {
	var jobs []models.ProcessingJob
	query := `SELECT * FROM processing_jobs ORDER BY created_at DESC LIMIT $1`
	if err := s.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// StartJob moves a pending job into processing and records the batch size.
// The WHERE clause keeps terminal states final.
func (s *Store) StartJob(ctx context.Context, jobID string, totalItems int) error {
	query := `
		UPDATE processing_jobs
		SET status = 'processing',
			total_items = $1,
			processed_items = 0,
			progress = 0,
			started_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status = 'pending'
	`
	result, err := s.db.ExecContext(ctx, query, totalItems, jobID)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("job %s is not pending", jobID)
	}
	return nil
}

// UpdateJobProgress records per-email progress while a job is processing
func (s *Store) UpdateJobProgress(ctx context.Context, jobID string, processedItems, progress int) error {
	query := `
		UPDATE processing_jobs
		SET processed_items = $1, progress = $2
		WHERE id = $3 AND status = 'processing'
	`
	if _, err := s.db.ExecContext(ctx, query, processedItems, progress, jobID); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// CompleteJob transitions a processing job into the terminal completed state
func (s *Store) CompleteJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE processing_jobs
		SET status = 'completed', progress = 100, completed_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'processing'
	`
	if _, err := s.db.ExecContext(ctx, query, jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// FailJob transitions a job into the terminal error state with a message
func (s *Store) FailJob(ctx context.Context, jobID, message string) error {
	query := `
		UPDATE processing_jobs
		SET status = 'error', error_message = $1, completed_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND status IN ('pending', 'processing')
	`
	if _, err := s.db.ExecContext(ctx, query, message, jobID); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return nil
}
