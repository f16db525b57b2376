// Package cluster groups embedded questions into FAQ groups by vector similarity
// and maintains each group's aggregate statistics.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"faqminer/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultJoinThreshold is the cosine similarity a question must reach against a
// group centroid to join that group
const DefaultJoinThreshold = 0.85

const (
	casMaxAttempts = 4
	casBackoffBase = 50 * time.Millisecond
)

// ErrNoEmbedding marks a question that cannot be clustered yet
var ErrNoEmbedding = errors.New("question has no embedding")

// Store is the persistence the engine needs for groups and memberships
type Store interface {
	CandidateGroups(ctx context.Context, category string) ([]models.FAQGroup, error)
	GetGroup(ctx context.Context, id int64) (*models.FAQGroup, error)
	CreateGroup(ctx context.Context, group *models.FAQGroup) error
	UpdateGroupStats(ctx context.Context, group *models.FAQGroup, expectedVersion int64) (bool, error)
	AddMembership(ctx context.Context, questionID, groupID int64) error
}

// Index is an optional approximate-nearest-neighbor index over group centroids.
// The engine falls back to scanning the store when it is nil or failing.
type Index interface {
	UpsertCentroid(ctx context.Context, groupID int64, category string, centroid []float64) error
	NearestGroups(ctx context.Context, vector []float64, category string, limit int) ([]int64, error)
}

// Result reports where a question landed
type Result struct {
	GroupID int64
	Created bool // true when a new group was opened for the question
}

var titleCaser = cases.Title(language.English)

// CanonicalCategory normalizes a free-form category label for grouping
func CanonicalCategory(category string) string {
	return titleCaser.String(category)
}

// Engine assigns questions to FAQ groups. Joins to the same group serialize
// through a per-group mutex plus an optimistic version check in the store, so
// concurrent jobs cannot race on question_count or the centroid.
type Engine struct {
	store     Store
	index     Index
	threshold float64
	log       zerolog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewEngine creates a clustering engine. index may be nil.
func NewEngine(store Store, index Index, threshold float64, logger zerolog.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultJoinThreshold
	}
	return &Engine{
		store:     store,
		index:     index,
		threshold: threshold,
		log:       logger.With().Str("component", "cluster_engine").Logger(),
		locks:     make(map[int64]*sync.Mutex),
	}
}

// Assign places a question into the best-matching FAQ group, or opens a new one
// when nothing reaches the join threshold
func (e *Engine) Assign(ctx context.Context, question *models.Question) (Result, error) {
	if !question.HasEmbedding() {
		return Result{}, ErrNoEmbedding
	}

	category := CanonicalCategory(question.Category)

	bestID, bestSimilarity, err := e.findBestGroup(ctx, question.Embedding, category)
	if err != nil {
		return Result{}, err
	}

	if bestID != 0 && bestSimilarity >= e.threshold {
		if err := e.join(ctx, question, bestID); err != nil {
			return Result{}, err
		}
		e.log.Debug().
			Int64("question_id", question.ID).
			Int64("group_id", bestID).
			Float64("similarity", bestSimilarity).
			Msg("question joined existing group")
		return Result{GroupID: bestID}, nil
	}

	group, err := e.createGroup(ctx, question, category)
	if err != nil {
		return Result{}, err
	}
	e.log.Debug().
		Int64("question_id", question.ID).
		Int64("group_id", group.ID).
		Msg("question opened new group")
	return Result{GroupID: group.ID, Created: true}, nil
}

// findBestGroup returns the id and similarity of the closest candidate group
func (e *Engine) findBestGroup(ctx context.Context, vector []float64, category string) (int64, float64, error) {
	candidates, err := e.candidateGroups(ctx, vector, category)
	if err != nil {
		return 0, 0, err
	}

	var bestID int64
	var bestSimilarity float64
	for i := range candidates {
		group := &candidates[i]
		similarity := CosineSimilarity(vector, group.Centroid)
		if similarity > bestSimilarity {
			bestID = group.ID
			bestSimilarity = similarity
		}
	}

	return bestID, bestSimilarity, nil
}

func (e *Engine) candidateGroups(ctx context.Context, vector []float64, category string) ([]models.FAQGroup, error) {
	if e.index != nil {
		ids, err := e.index.NearestGroups(ctx, vector, category, 10)
		if err == nil {
			groups := make([]models.FAQGroup, 0, len(ids))
			for _, id := range ids {
				group, err := e.store.GetGroup(ctx, id)
				if err != nil {
					continue // index may be ahead of or behind the store
				}
				groups = append(groups, *group)
			}
			return groups, nil
		}
		e.log.Warn().Err(err).Msg("centroid index query failed, scanning store")
	}

	return e.store.CandidateGroups(ctx, category)
}

// join adds the question to a group under the per-group lock, retrying the
// optimistic update a bounded number of times before surfacing a storage error
func (e *Engine) join(ctx context.Context, question *models.Question, groupID int64) error {
	lock := e.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 1; attempt <= casMaxAttempts; attempt++ {
		group, err := e.store.GetGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("failed to load group %d: %w", groupID, err)
		}

		expectedVersion := group.Version
		newCount := group.QuestionCount + 1

		group.QuestionCount = newCount
		group.AvgConfidence += (question.Confidence - group.AvgConfidence) / float64(newCount)
		group.Centroid = UpdateCentroid(group.Centroid, question.Embedding, newCount)

		// Title follows the highest-confidence phrasing; exact ties keep the
		// earlier question's wording
		if question.Confidence > group.MaxConfidence {
			group.Title = question.Text
			group.MaxConfidence = question.Confidence
		}

		ok, err := e.store.UpdateGroupStats(ctx, group, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to update group %d: %w", groupID, err)
		}
		if ok {
			if err := e.store.AddMembership(ctx, question.ID, groupID); err != nil {
				return err
			}
			e.upsertCentroid(ctx, groupID, group.Category, group.Centroid)
			return nil
		}

		// Another writer bumped the version; back off and retry
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(casBackoffBase * time.Duration(attempt)):
		}
	}

	return fmt.Errorf("group %d update conflicted %d times", groupID, casMaxAttempts)
}

func (e *Engine) createGroup(ctx context.Context, question *models.Question, category string) (*models.FAQGroup, error) {
	group := &models.FAQGroup{
		Title:         question.Text,
		Category:      category,
		QuestionCount: 1,
		AvgConfidence: question.Confidence,
		MaxConfidence: question.Confidence,
		Centroid:      question.Embedding,
	}

	if err := e.store.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	if err := e.store.AddMembership(ctx, question.ID, group.ID); err != nil {
		return nil, err
	}
	e.upsertCentroid(ctx, group.ID, category, group.Centroid)

	return group, nil
}

func (e *Engine) upsertCentroid(ctx context.Context, groupID int64, category string, centroid []float64) {
	if e.index == nil {
		return
	}
	if err := e.index.UpsertCentroid(ctx, groupID, category, centroid); err != nil {
		// The index is a cache over the store; a stale entry only costs recall
		e.log.Warn().Int64("group_id", groupID).Err(err).Msg("failed to update centroid index")
	}
}

// groupLock returns the mutex serializing joins for one group. Locks are never
// pruned; the map is bounded by the number of FAQ groups.
func (e *Engine) groupLock(groupID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[groupID] = lock
	}
	return lock
}
