package database

import "fmt"

// CreateTables creates the application tables if they do not exist
func (s *Store) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS emails (
			id BIGSERIAL PRIMARY KEY,
			message_id VARCHAR(255) UNIQUE NOT NULL,
			thread_id VARCHAR(255),
			sender_email TEXT NOT NULL,
			sender_name TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL,
			normalized_subject TEXT NOT NULL,
			body_text TEXT NOT NULL,
			received_at TIMESTAMP NOT NULL,
			direction VARCHAR(16) NOT NULL DEFAULT 'unknown',
			has_response BOOLEAN NOT NULL DEFAULT FALSE,
			filtering_status VARCHAR(16) NOT NULL DEFAULT 'pending',
			filtering_reason TEXT NOT NULL DEFAULT '',
			processed_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS questions (
			id BIGSERIAL PRIMARY KEY,
			source_email_id BIGINT NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			text_hash VARCHAR(64) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			embedding TEXT,
			sender_email TEXT NOT NULL DEFAULT '',
			sender_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (source_email_id, text_hash)
		)`,

		`CREATE TABLE IF NOT EXISTS faq_groups (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			answer TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			question_count INT NOT NULL DEFAULT 1,
			avg_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			sort_order INT NOT NULL DEFAULT 0,
			is_published BOOLEAN NOT NULL DEFAULT FALSE,
			view_count INT NOT NULL DEFAULT 0,
			helpful_count INT NOT NULL DEFAULT 0,
			not_helpful_count INT NOT NULL DEFAULT 0,
			centroid TEXT,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS question_group_memberships (
			question_id BIGINT PRIMARY KEY REFERENCES questions(id) ON DELETE CASCADE,
			group_id BIGINT NOT NULL REFERENCES faq_groups(id) ON DELETE CASCADE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS processing_jobs (
			id VARCHAR(36) PRIMARY KEY,
			type VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			progress INT NOT NULL DEFAULT 0,
			processed_items INT NOT NULL DEFAULT 0,
			total_items INT NOT NULL DEFAULT 0,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// Create indexes separately
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_emails_thread_id ON emails(thread_id)`,
		`CREATE INDEX IF NOT EXISTS idx_emails_normalized_subject ON emails(normalized_subject)`,
		`CREATE INDEX IF NOT EXISTS idx_emails_filtering_status ON emails(filtering_status)`,
		`CREATE INDEX IF NOT EXISTS idx_emails_received_at ON emails(received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_source_email ON questions(source_email_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_group ON question_group_memberships(group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_faq_groups_category ON faq_groups(category)`,
		`CREATE INDEX IF NOT EXISTS idx_faq_groups_sort_order ON faq_groups(sort_order)`,
		`CREATE INDEX IF NOT EXISTS idx_processing_jobs_status ON processing_jobs(status)`,
	}

	for _, query := range indexes {
		if _, err := s.db.Exec(query); err != nil {
			// Index creation is best-effort; it may race with another replica
			s.log.Warn().Err(err).Msg("failed to create index")
		}
	}

	return nil
}
