// Package jobs runs the email-to-FAQ mining pipeline as resumable background
// jobs with observable progress.
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"faqminer/internal/ai"
	"faqminer/internal/classify"
	"faqminer/internal/cluster"
	"faqminer/internal/models"
	"faqminer/internal/quality"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the persistence the orchestrator drives. Storage failures are fatal
// to the running job; capability failures are not.
type Store interface {
	ListUnprocessed(ctx context.Context, limit int) ([]models.Email, error)
	ListThreadPeers(ctx context.Context, email *models.Email) ([]models.Email, error)
	UpdateClassification(ctx context.Context, email *models.Email) error
	MarkProcessed(ctx context.Context, emailID int64) error

	InsertQuestion(ctx context.Context, question *models.Question) (bool, error)
	SetQuestionEmbedding(ctx context.Context, questionID int64, embedding []float64) error
	ListUnclusteredQuestions(ctx context.Context, limit int) ([]models.Question, error)

	CreateJob(ctx context.Context, job *models.ProcessingJob) error
	StartJob(ctx context.Context, jobID string, totalItems int) error
	UpdateJobProgress(ctx context.Context, jobID string, processedItems, progress int) error
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, message string) error
	GetJob(ctx context.Context, id string) (*models.ProcessingJob, error)
}

// Assigner places one embedded question into an FAQ group
type Assigner interface {
	Assign(ctx context.Context, question *models.Question) (cluster.Result, error)
}

// AnswerWriter refreshes group answers after clustering settles
type AnswerWriter interface {
	SynthesizeGroup(ctx context.Context, groupID int64) error
}

// Notifier reports job completion out of band. May be nil.
type Notifier interface {
	NotifyJobComplete(jobID string, processed, questionsFound, groupsCreated int) error
}

// Orchestrator owns ProcessingJob mutation and runs batches of emails through
// the classify → extract → validate → embed → cluster → synthesize pipeline.
// Each email in a job is processed sequentially; independent jobs run in
// parallel.
type Orchestrator struct {
	store      Store
	classifier *classify.Classifier
	tc         ai.TextCompletion
	embedder   ai.Embedder
	engine     Assigner
	synth      AnswerWriter
	hub        *Hub
	notifier   Notifier
	batchSize  int
	log        zerolog.Logger
}

// NewOrchestrator wires the pipeline components together. notifier may be nil.
func NewOrchestrator(store Store, classifier *classify.Classifier, tc ai.TextCompletion,
	embedder ai.Embedder, engine Assigner, synth AnswerWriter, hub *Hub,
	notifier Notifier, batchSize int, logger zerolog.Logger) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		tc:         tc,
		embedder:   embedder,
		engine:     engine,
		synth:      synth,
		hub:        hub,
		notifier:   notifier,
		batchSize:  batchSize,
		log:        logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Enqueue creates a new pending job. Terminal jobs are never reused; a retry is
// a new job over the same (idempotent) email set.
func (o *Orchestrator) Enqueue(ctx context.Context, jobType models.JobType) (*models.ProcessingJob, error) {
	job := &models.ProcessingJob{
		ID:   uuid.NewString(),
		Type: jobType,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	o.log.Info().Str("job_id", job.ID).Str("type", string(job.Type)).Msg("job enqueued")
	return job, nil
}

// batchStats accumulates per-job tallies for progress and completion events
type batchStats struct {
	questionsFound   int
	errors           int
	groupsCreated    int
	questionsGrouped int
	touchedGroups    map[int64]struct{}
}

// Run executes one pending job to a terminal state. Capability failures are
// tallied and skipped; storage failures fail the job. Cancellation via ctx takes
// effect between emails, never mid-email.
func (o *Orchestrator) Run(ctx context.Context, jobID string) {
	log := o.log.With().Str("job_id", jobID).Logger()

	emails, err := o.store.ListUnprocessed(ctx, o.batchSize)
	if err != nil {
		o.failJob(ctx, jobID, fmt.Sprintf("failed to load email batch: %v", err))
		return
	}

	if err := o.store.StartJob(ctx, jobID, len(emails)); err != nil {
		o.failJob(ctx, jobID, err.Error())
		return
	}
	log.Info().Int("total", len(emails)).Msg("job started")

	stats := &batchStats{touchedGroups: make(map[int64]struct{})}

	for i := range emails {
		select {
		case <-ctx.Done():
			o.failJob(ctx, jobID, "job cancelled")
			return
		default:
		}

		email := &emails[i]
		if err := o.processEmail(ctx, email, stats); err != nil {
			o.failJob(ctx, jobID, err.Error())
			return
		}

		processed := i + 1
		progress := 100 * processed / len(emails)
		if err := o.store.UpdateJobProgress(ctx, jobID, processed, progress); err != nil {
			o.failJob(ctx, jobID, err.Error())
			return
		}

		o.hub.Publish(Event{
			Type:              EventProgress,
			JobID:             jobID,
			Current:           processed,
			Total:             len(emails),
			QuestionsFound:    stats.questionsFound,
			Errors:            stats.errors,
			CurrentEmailLabel: emailLabel(email),
		})
	}

	// Answers are refreshed once per touched group, after clustering settles
	for groupID := range stats.touchedGroups {
		if err := o.synth.SynthesizeGroup(ctx, groupID); err != nil {
			stats.errors++
		}
	}

	if err := o.store.CompleteJob(ctx, jobID); err != nil {
		o.failJob(ctx, jobID, err.Error())
		return
	}

	o.hub.Publish(Event{
		Type:             EventComplete,
		JobID:            jobID,
		Processed:        len(emails),
		QuestionsFound:   stats.questionsFound,
		FAQGroupsCreated: stats.groupsCreated,
		QuestionsGrouped: stats.questionsGrouped,
	})
	log.Info().
		Int("processed", len(emails)).
		Int("questions_found", stats.questionsFound).
		Int("groups_created", stats.groupsCreated).
		Int("errors", stats.errors).
		Msg("job completed")

	if o.notifier != nil {
		if err := o.notifier.NotifyJobComplete(jobID, len(emails), stats.questionsFound, stats.groupsCreated); err != nil {
			log.Warn().Err(err).Msg("completion notification failed")
		}
	}
}

// processEmail runs one email through the full pipeline. The returned error is
// always a storage fault; everything recoverable is tallied in stats.
func (o *Orchestrator) processEmail(ctx context.Context, email *models.Email, stats *batchStats) error {
	peers, err := o.store.ListThreadPeers(ctx, email)
	if err != nil {
		return err
	}

	result := o.classifier.Classify(email, peers)
	email.Direction = result.Direction
	email.HasResponse = result.HasResponse
	email.FilteringStatus = result.FilteringStatus
	email.FilteringReason = result.FilteringReason
	if err := o.store.UpdateClassification(ctx, email); err != nil {
		return err
	}

	if email.FilteringStatus == models.FilteringQualified {
		if err := o.mineQuestions(ctx, email, stats); err != nil {
			return err
		}
	}

	return o.store.MarkProcessed(ctx, email.ID)
}

// mineQuestions extracts, validates, embeds and clusters the questions in one
// qualified email
func (o *Orchestrator) mineQuestions(ctx context.Context, email *models.Email, stats *batchStats) error {
	candidates, err := o.tc.ExtractQuestions(ctx, email.BodyText)
	if err != nil {
		o.log.Warn().Int64("email_id", email.ID).Err(err).Msg("question extraction failed")
		stats.errors++
		return nil
	}

	for _, cand := range candidates {
		check := quality.Validate(cand.Text)
		if !check.IsValid {
			continue
		}

		question := &models.Question{
			SourceEmailID: email.ID,
			Text:          cand.Text,
			TextHash:      QuestionHash(cand.Text),
			Confidence:    cand.Confidence,
			Category:      cand.Category,
			SenderEmail:   email.SenderEmail,
			SenderName:    email.SenderName,
		}

		inserted, err := o.store.InsertQuestion(ctx, question)
		if err != nil {
			return err
		}
		if !inserted {
			// Already mined in an earlier run of the same email
			continue
		}
		stats.questionsFound++

		vector, err := o.embedder.Vectorize(ctx, question.Text)
		if err != nil {
			o.log.Warn().Int64("question_id", question.ID).Err(err).Msg("embedding failed, question left unclustered")
			stats.errors++
			continue
		}
		if len(vector) == 0 {
			continue
		}

		if err := o.store.SetQuestionEmbedding(ctx, question.ID, vector); err != nil {
			return err
		}
		question.Embedding = vector

		assignment, err := o.engine.Assign(ctx, question)
		if err != nil {
			if errors.Is(err, cluster.ErrNoEmbedding) {
				continue
			}
			return err
		}

		stats.questionsGrouped++
		if assignment.Created {
			stats.groupsCreated++
		}
		stats.touchedGroups[assignment.GroupID] = struct{}{}
	}

	return nil
}

// ReclusterPending embeds and clusters questions left behind by earlier
// capability failures. Used by the backfill pass.
func (o *Orchestrator) ReclusterPending(ctx context.Context, limit int) (int, error) {
	questions, err := o.store.ListUnclusteredQuestions(ctx, limit)
	if err != nil {
		return 0, err
	}

	clustered := 0
	for i := range questions {
		question := &questions[i]

		if !question.HasEmbedding() {
			vector, err := o.embedder.Vectorize(ctx, question.Text)
			if err != nil || len(vector) == 0 {
				continue
			}
			if err := o.store.SetQuestionEmbedding(ctx, question.ID, vector); err != nil {
				return clustered, err
			}
			question.Embedding = vector
		}

		if _, err := o.engine.Assign(ctx, question); err != nil {
			if errors.Is(err, cluster.ErrNoEmbedding) {
				continue
			}
			return clustered, err
		}
		clustered++
	}

	return clustered, nil
}

func (o *Orchestrator) failJob(ctx context.Context, jobID, message string) {
	o.log.Error().Str("job_id", jobID).Str("reason", message).Msg("job failed")
	// The failure may be ctx itself being cancelled; the terminal write is
	// detached so the job row never strands in processing.
	if err := o.store.FailJob(context.WithoutCancel(ctx), jobID, message); err != nil {
		o.log.Error().Str("job_id", jobID).Err(err).Msg("failed to record job failure")
	}
	o.hub.Publish(Event{Type: EventError, JobID: jobID, Message: message})
}

// QuestionHash is the idempotency key component derived from question text:
// lowercase, whitespace-collapsed, SHA-256
func QuestionHash(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func emailLabel(email *models.Email) string {
	if strings.TrimSpace(email.Subject) != "" {
		return email.Subject
	}
	return email.SenderEmail
}
