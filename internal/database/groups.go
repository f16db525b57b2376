package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"faqminer/internal/models"
)

const groupColumns = `id, title, answer, category, question_count, avg_confidence,
	max_confidence, sort_order, is_published, view_count, helpful_count,
	not_helpful_count, centroid, version, created_at, updated_at`

// CandidateGroups returns the groups a new question may join. With a category it
// returns only that category's groups; with an empty category it returns the whole
// corpus.
func (s *Store) CandidateGroups(ctx context.Context, category string) ([]models.FAQGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM faq_groups`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY id`

	return s.selectGroups(ctx, query, args...)
}

// GetGroup retrieves a single FAQ group by id
func (s *Store) GetGroup(ctx context.Context, id int64) (*models.FAQGroup, error) {
	groups, err := s.selectGroups(ctx, `SELECT `+groupColumns+` FROM faq_groups WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, sql.ErrNoRows
	}
	return &groups[0], nil
}

// CreateGroup inserts a new FAQ group at the end of the sort order and fills in
// its id, sort order and version
func (s *Store) CreateGroup(ctx context.Context, group *models.FAQGroup) error {
	centroid, err := json.Marshal(group.Centroid)
	if err != nil {
		return fmt.Errorf("failed to marshal centroid: %w", err)
	}

	query := `
		INSERT INTO faq_groups (title, answer, category, question_count, avg_confidence,
			max_confidence, sort_order, is_published, centroid, version)
		VALUES ($1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(sort_order), 0) + 1 FROM faq_groups), FALSE, $7, 1)
		RETURNING id, sort_order, version
	`

	row := s.db.QueryRowContext(ctx, query,
		group.Title, group.Answer, group.Category, group.QuestionCount,
		group.AvgConfidence, group.MaxConfidence, string(centroid))
	if err := row.Scan(&group.ID, &group.SortOrder, &group.Version); err != nil {
		return fmt.Errorf("failed to create FAQ group: %w", err)
	}

	return nil
}

// UpdateGroupStats applies a join's aggregate changes under optimistic locking.
// Returns false without writing when another writer bumped the version first.
func (s *Store) UpdateGroupStats(ctx context.Context, group *models.FAQGroup, expectedVersion int64) (bool, error) {
	centroid, err := json.Marshal(group.Centroid)
	if err != nil {
		return false, fmt.Errorf("failed to marshal centroid: %w", err)
	}

	query := `
		UPDATE faq_groups
		SET title = $1,
			question_count = $2,
			avg_confidence = $3,
			max_confidence = $4,
			centroid = $5,
			version = version + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $6 AND version = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		group.Title, group.QuestionCount, group.AvgConfidence, group.MaxConfidence,
		string(centroid), group.ID, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("failed to update FAQ group: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected == 1, nil
}

// AddMembership records a question joining a group. Memberships are immutable;
// a question never migrates between groups.
func (s *Store) AddMembership(ctx context.Context, questionID, groupID int64) error {
	query := `
		INSERT INTO question_group_memberships (question_id, group_id)
		VALUES ($1, $2)
		ON CONFLICT (question_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, questionID, groupID); err != nil {
		return fmt.Errorf("failed to add group membership: %w", err)
	}
	return nil
}

// UpdateGroupAnswer replaces a group's synthesized answer
func (s *Store) UpdateGroupAnswer(ctx context.Context, groupID int64, answer string) error {
	query := `UPDATE faq_groups SET answer = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, answer, groupID); err != nil {
		return fmt.Errorf("failed to update group answer: %w", err)
	}
	return nil
}

// ListPublishedGroups returns published groups in display order
func (s *Store) ListPublishedGroups(ctx context.Context) ([]models.FAQGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM faq_groups WHERE is_published ORDER BY sort_order`
	return s.selectGroups(ctx, query)
}

// ListGroups returns all groups in display order, for the admin surface
func (s *Store) ListGroups(ctx context.Context) ([]models.FAQGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM faq_groups ORDER BY sort_order`
	return s.selectGroups(ctx, query)
}

// IncrementViewCount bumps a group's view counter
func (s *Store) IncrementViewCount(ctx context.Context, groupID int64) error {
	query := `UPDATE faq_groups SET view_count = view_count + 1 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, groupID); err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	return nil
}

// AddFeedback records a helpful / not-helpful vote on a group
func (s *Store) AddFeedback(ctx context.Context, groupID int64, helpful bool) error {
	column := "not_helpful_count"
	if helpful {
		column = "helpful_count"
	}
	query := fmt.Sprintf(`UPDATE faq_groups SET %s = %s + 1 WHERE id = $1`, column, column)
	if _, err := s.db.ExecContext(ctx, query, groupID); err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	return nil
}

// SetPublished toggles whether a group appears on the public FAQ page
func (s *Store) SetPublished(ctx context.Context, groupID int64, published bool) error {
	query := `UPDATE faq_groups SET is_published = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, published, groupID); err != nil {
		return fmt.Errorf("failed to set published flag: %w", err)
	}
	return nil
}

// ReorderGroups rewrites sort_order as a dense 1..n ranking following the given id
// order, in one transaction
func (s *Store) ReorderGroups(ctx context.Context, orderedIDs []int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reorder transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for position, id := range orderedIDs {
		query := `UPDATE faq_groups SET sort_order = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
		if _, err := tx.ExecContext(ctx, query, position+1, id); err != nil {
			return fmt.Errorf("failed to reorder group %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reorder: %w", err)
	}
	return nil
}

func (s *Store) selectGroups(ctx context.Context, query string, args ...interface{}) ([]models.FAQGroup, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query FAQ groups: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Warn().Err(err).Msg("error closing rows")
		}
	}()

	var groups []models.FAQGroup
	for rows.Next() {
		var g models.FAQGroup
		var centroid sql.NullString

		err := rows.Scan(&g.ID, &g.Title, &g.Answer, &g.Category, &g.QuestionCount,
			&g.AvgConfidence, &g.MaxConfidence, &g.SortOrder, &g.IsPublished,
			&g.ViewCount, &g.HelpfulCount, &g.NotHelpfulCount, &centroid, &g.Version,
			&g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan FAQ group: %w", err)
		}

		if centroid.Valid && centroid.String != "" {
			if err := json.Unmarshal([]byte(centroid.String), &g.Centroid); err != nil {
				s.log.Warn().Int64("group_id", g.ID).Err(err).Msg("invalid stored centroid")
				g.Centroid = nil
			}
		}

		groups = append(groups, g)
	}

	return groups, rows.Err()
}
