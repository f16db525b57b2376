package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"faqminer/internal/ai"
	"faqminer/internal/classify"
	"faqminer/internal/cluster"
	"faqminer/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJobStore is an in-memory implementation of the orchestrator's Store
type fakeJobStore struct {
	mu sync.Mutex

	emails    []models.Email
	peers     map[int64][]models.Email // email id -> thread peers
	processed map[int64]bool

	questions      map[string]*models.Question // idempotency key -> question
	nextQuestionID int64
	embeddings     map[int64][]float64
	unclustered    []models.Question

	jobs map[string]*models.ProcessingJob

	progressUpdates []int // progress values in call order

	failUpdateClassification bool
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		peers:      make(map[int64][]models.Email),
		processed:  make(map[int64]bool),
		questions:  make(map[string]*models.Question),
		embeddings: make(map[int64][]float64),
		jobs:       make(map[string]*models.ProcessingJob),
	}
}

func (f *fakeJobStore) ListUnprocessed(_ context.Context, limit int) ([]models.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.emails) > limit {
		return f.emails[:limit], nil
	}
	return f.emails, nil
}

func (f *fakeJobStore) ListThreadPeers(_ context.Context, email *models.Email) ([]models.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[email.ID], nil
}

func (f *fakeJobStore) UpdateClassification(_ context.Context, email *models.Email) error {
	if f.failUpdateClassification {
		return errors.New("storage unavailable")
	}
	return nil
}

func (f *fakeJobStore) MarkProcessed(_ context.Context, emailID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[emailID] = true
	return nil
}

func (f *fakeJobStore) InsertQuestion(_ context.Context, question *models.Question) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%s", question.SourceEmailID, question.TextHash)
	if existing, ok := f.questions[key]; ok {
		question.ID = existing.ID
		return false, nil
	}
	f.nextQuestionID++
	question.ID = f.nextQuestionID
	clone := *question
	f.questions[key] = &clone
	return true, nil
}

func (f *fakeJobStore) SetQuestionEmbedding(_ context.Context, questionID int64, embedding []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings[questionID] = embedding
	return nil
}

func (f *fakeJobStore) ListUnclusteredQuestions(_ context.Context, limit int) ([]models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.unclustered) > limit {
		return f.unclustered[:limit], nil
	}
	return f.unclustered, nil
}

func (f *fakeJobStore) CreateJob(_ context.Context, job *models.ProcessingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job.Status = models.JobStatusPending
	job.CreatedAt = time.Now()
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeJobStore) GetJob(_ context.Context, id string) (*models.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobStore) StartJob(_ context.Context, jobID string, totalItems int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.Status != models.JobStatusPending {
		return errors.New("job is not pending")
	}
	job.Status = models.JobStatusProcessing
	job.TotalItems = totalItems
	return nil
}

func (f *fakeJobStore) UpdateJobProgress(_ context.Context, jobID string, processedItems, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[jobID]
	job.ProcessedItems = processedItems
	job.Progress = progress
	f.progressUpdates = append(f.progressUpdates, progress)
	return nil
}

func (f *fakeJobStore) CompleteJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[jobID]
	if job.Status != models.JobStatusProcessing {
		return errors.New("job is not processing")
	}
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	return nil
}

func (f *fakeJobStore) FailJob(ctx context.Context, jobID, message string) error {
	// Like the sqlx store, a cancelled context means no write happens
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	job.Status = models.JobStatusError
	job.ErrorMessage = message
	return nil
}

// fakeCapability implements ai.TextCompletion and ai.Embedder, mapping email
// bodies to canned candidates
type fakeCapability struct {
	byBody     map[string][]ai.Candidate
	extractErr error
	vectorErr  error
	vector     []float64
}

func (f *fakeCapability) ExtractQuestions(_ context.Context, body string) ([]ai.Candidate, error) {
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.byBody[body], nil
}

func (f *fakeCapability) SynthesizeAnswer(_ context.Context, _ []string, _ []string) (string, error) {
	return "synthesized answer", nil
}

func (f *fakeCapability) Vectorize(_ context.Context, _ string) ([]float64, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vector, nil
}

// fakeAssigner records assignments; the first question opens a group, the rest
// join it
type fakeAssigner struct {
	mu       sync.Mutex
	assigned []int64
	groupID  int64
	err      error
}

func (f *fakeAssigner) Assign(_ context.Context, question *models.Question) (cluster.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return cluster.Result{}, f.err
	}
	f.assigned = append(f.assigned, question.ID)
	if f.groupID == 0 {
		f.groupID = 1
		return cluster.Result{GroupID: 1, Created: true}, nil
	}
	return cluster.Result{GroupID: f.groupID}, nil
}

type fakeAnswerWriter struct {
	mu     sync.Mutex
	groups []int64
	err    error
}

func (f *fakeAnswerWriter) SynthesizeGroup(_ context.Context, groupID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.groups = append(f.groups, groupID)
	return nil
}

const questionText = "How do I reset my password for my account?"

func qualifiedEmail(id int64) (models.Email, []models.Email) {
	threadID := "thread-1"
	email := models.Email{
		ID:          id,
		SenderEmail: "alice@example.com",
		Subject:     "password trouble",
		BodyText:    "Hi, how do I reset my password?",
		ReceivedAt:  time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		ThreadID:    &threadID,
	}
	reply := models.Email{
		ID:          id + 1000,
		SenderEmail: "support@acme.com",
		ReceivedAt:  email.ReceivedAt.Add(time.Hour),
		ThreadID:    &threadID,
	}
	return email, []models.Email{reply}
}

func newTestOrchestrator(store *fakeJobStore, capability *fakeCapability,
	assigner *fakeAssigner, writer *fakeAnswerWriter) (*Orchestrator, *Hub) {
	hub := NewHub(zerolog.Nop())
	classifier := classify.New([]string{"support@acme.com"})
	orch := NewOrchestrator(store, classifier, capability, capability,
		assigner, writer, hub, nil, 50, zerolog.Nop())
	return orch, hub
}

func drainEvents(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case e := <-ch:
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestRunProcessesQualifiedEmails(t *testing.T) {
	store := newFakeJobStore()
	email, peers := qualifiedEmail(1)
	store.emails = []models.Email{email}
	store.peers[email.ID] = peers

	capability := &fakeCapability{
		byBody: map[string][]ai.Candidate{
			email.BodyText: {{Text: questionText, Confidence: 0.9, Category: "Account"}},
		},
		vector: []float64{1, 0, 0},
	}
	assigner := &fakeAssigner{}
	writer := &fakeAnswerWriter{}
	orch, hub := newTestOrchestrator(store, capability, assigner, writer)
	ctx := context.Background()

	job, err := orch.Enqueue(ctx, models.JobTypeFAQProcessing)
	require.NoError(t, err)

	events := hub.Subscribe(job.ID)
	orch.Run(ctx, job.ID)

	final, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, 1, final.ProcessedItems)

	assert.True(t, store.processed[email.ID])
	assert.Len(t, store.questions, 1)
	assert.Len(t, assigner.assigned, 1)
	assert.Equal(t, []int64{1}, writer.groups)

	published := drainEvents(events)
	require.NotEmpty(t, published)
	last := published[len(published)-1]
	assert.Equal(t, EventComplete, last.Type)
	assert.Equal(t, 1, last.Processed)
	assert.Equal(t, 1, last.QuestionsFound)
	assert.Equal(t, 1, last.FAQGroupsCreated)
	assert.Equal(t, 1, last.QuestionsGrouped)
}

func TestRunFiltersOutboundAndUnansweredEmails(t *testing.T) {
	store := newFakeJobStore()
	outbound := models.Email{ID: 1, SenderEmail: "support@acme.com", BodyText: "we shipped it"}
	unanswered := models.Email{ID: 2, SenderEmail: "bob@example.com", BodyText: "How do I reset my password?"}
	store.emails = []models.Email{outbound, unanswered}

	capability := &fakeCapability{byBody: map[string][]ai.Candidate{}, vector: []float64{1}}
	assigner := &fakeAssigner{}
	writer := &fakeAnswerWriter{}
	orch, _ := newTestOrchestrator(store, capability, assigner, writer)
	ctx := context.Background()

	job, err := orch.Enqueue(ctx, models.JobTypeFAQProcessing)
	require.NoError(t, err)
	orch.Run(ctx, job.ID)

	final, _ := store.GetJob(ctx, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)

	// Neither email is mined, both are marked processed
	assert.Empty(t, store.questions)
	assert.True(t, store.processed[1])
	assert.True(t, store.processed[2])
}

func TestRunProgressIsMonotone(t *testing.T) {
	store := newFakeJobStore()
	for i := int64(1); i <= 4; i++ {
		email, peers := qualifiedEmail(i * 10)
		store.emails = append(store.emails, email)
		store.peers[email.ID] = peers
	}

	capability := &fakeCapability{byBody: map[string][]ai.Candidate{}, vector: []float64{1}}
	orch, _ := newTestOrchestrator(store, capability, &fakeAssigner{}, &fakeAnswerWriter{})
	ctx := context.Background()

	job, err := orch.Enqueue(ctx, models.JobTypeFAQProcessing)
	require.NoError(t, err)
	orch.Run(ctx, job.ID)

	assert.Equal(t, []int{25, 50, 75, 100}, store.progressUpdates)
}

func TestRunTalliesExtractionFailures(t *testing.T) {
	store := newFakeJobStore()
	email, peers := qualifiedEmail(1)
	store.emails = []models.Email{email}
	store.peers[email.ID] = peers

	capability := &fakeCapability{extractErr: errors.New("model timeout"), vector: []float64{1}}
	orch, hub := newTestOrchestrator(store, capability, &fakeAssigner{}, &fakeAnswerWriter{})
	ctx := context.Background()

	job, err := orch.Enqueue(ctx, models.JobTypeFAQProcessing)
	require.NoError(t, err)

	events := hub.Subscribe(job.ID)
	orch.Run(ctx, job.ID)

	// The job still completes; the failure is tallied, the email is processed
	final, _ := store.GetJob(ctx, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.True(t, store.processed[email.ID])
	assert.Empty(t, store.questions)

	published := drainEvents(events)
	var progress *Event
	for i := range published {
		if published[i].Type == EventProgress {
			progress = &published[i]
		}
	}
	require.NotNil(t, progress)
	assert.Equal(t, 1, progress.Errors)
}

func TestRunEmbeddingFailureLeavesQuestionUnclustered(t *testing.T) {
	store := newFakeJobStore()
	email, peers := qualifiedEmail(1)
	store.emails = []models.Email{email}
	store.peers[email.ID] = peers

	capability := &fakeCapability{
		byBody: map[string][]ai.Candidate{
			email.BodyText: {{Text: questionText, Confidence: 0.9, Category: "Account"}},
		},
		vectorErr: errors.New("embedding unavailable"),
	}
	assigner := &fakeAssigner{}
	orch, _ := newTestOrchestrator(store, capability, assigner, &fakeAnswerWriter{})
	ctx := context.Background()

	job, err := orch.Enqueue(ctx, models.JobTypeFAQProcessing)
	require.NoError(t, err)
	orch.Run(ctx, job.ID)

	// Question persisted but never clustered
	final, _ := store.GetJob(ctx, job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Len(t, store.questions, 1)
	assert.Empty(t, store.embeddings)
	assert.Empty(t, assigner.assigned)
}

func TestRunStorageFailureFailsJob(t *testing.T) {
	store := newFakeJobStore()
	email, peers := qualifiedEmail(1)
	store.emails = []models.Email{email}
	store.peers[email.ID] = peers
	store.failUpdateClassification = true

	capability := &fakeCapability{byBody: map[string][]ai.Candidate{}}
	orch, hub := newTestOrchestrator(store, capability, &fakeAssigner{}, &fakeAnswerWriter{})
	ctx := context.Background()

	job, err := orch.Enqueue(ctx, models.JobTypeFAQProcessing)
	require.NoError(t, err)

	events := hub.Subscribe(job.ID)
	orch.Run(ctx, job.ID)

	final, _ := store.GetJob(ctx, job.ID)
	assert.Equal(t, models.JobStatusError, final.Status)
	assert.NotEmpty(t, final.ErrorMessage)

	published := drainEvents(events)
	require.NotEmpty(t, published)
	assert.Equal(t, EventError, published[len(published)-1].Type)
}

func TestRunCancellation(t *testing.T) {
	store := newFakeJobStore()
	email, peers := qualifiedEmail(1)
	store.emails = []models.Email{email}
	store.peers[email.ID] = peers

	capability := &fakeCapability{byBody: map[string][]ai.Candidate{}}
	orch, _ := newTestOrchestrator(store, capability, &fakeAssigner{}, &fakeAnswerWriter{})

	job, err := orch.Enqueue(context.Background(), models.JobTypeFAQProcessing)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	orch.Run(ctx, job.ID)

	final, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusError, final.Status)
	assert.Equal(t, "job cancelled", final.ErrorMessage)
}

func TestRunDuplicateQuestionNotDoubleCounted(t *testing.T) {
	store := newFakeJobStore()
	email, peers := qualifiedEmail(1)
	store.emails = []models.Email{email}
	store.peers[email.ID] = peers

	capability := &fakeCapability{
		byBody: map[string][]ai.Candidate{
			// The model returns the same question twice
			email.BodyText: {
				{Text: questionText, Confidence: 0.9, Category: "Account"},
				{Text: questionText, Confidence: 0.8, Category: "Account"},
			},
		},
		vector: []float64{1, 0, 0},
	}
	assigner := &fakeAssigner{}
	orch, hub := newTestOrchestrator(store, capability, assigner, &fakeAnswerWriter{})
	ctx := context.Background()

	job, err := orch.Enqueue(ctx, models.JobTypeFAQProcessing)
	require.NoError(t, err)

	events := hub.Subscribe(job.ID)
	orch.Run(ctx, job.ID)

	assert.Len(t, store.questions, 1)
	assert.Len(t, assigner.assigned, 1)

	published := drainEvents(events)
	last := published[len(published)-1]
	assert.Equal(t, EventComplete, last.Type)
	assert.Equal(t, 1, last.QuestionsFound)
}

func TestRunSecondPassIsIdempotent(t *testing.T) {
	store := newFakeJobStore()
	email, peers := qualifiedEmail(1)
	store.emails = []models.Email{email}
	store.peers[email.ID] = peers

	capability := &fakeCapability{
		byBody: map[string][]ai.Candidate{
			email.BodyText: {{Text: questionText, Confidence: 0.9, Category: "Account"}},
		},
		vector: []float64{1, 0, 0},
	}
	assigner := &fakeAssigner{}
	orch, _ := newTestOrchestrator(store, capability, assigner, &fakeAnswerWriter{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		job, err := orch.Enqueue(ctx, models.JobTypeFAQProcessing)
		require.NoError(t, err)
		orch.Run(ctx, job.ID)
	}

	// Processing the same email twice yields one question and one assignment
	assert.Len(t, store.questions, 1)
	assert.Len(t, assigner.assigned, 1)
}

func TestReclusterPending(t *testing.T) {
	store := newFakeJobStore()
	// The first question still needs an embedding, the second already has one
	store.unclustered = []models.Question{
		{ID: 1, Text: questionText},
		{ID: 2, Text: questionText, Embedding: []float64{0, 1, 0}},
	}

	capability := &fakeCapability{vector: []float64{1, 0, 0}}
	assigner := &fakeAssigner{}
	orch, _ := newTestOrchestrator(store, capability, assigner, &fakeAnswerWriter{})

	clustered, err := orch.ReclusterPending(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, clustered)
	assert.Len(t, assigner.assigned, 2)
	assert.Equal(t, []float64{1, 0, 0}, store.embeddings[1])
}

func TestQuestionHash(t *testing.T) {
	// Hash is stable under case and whitespace differences
	assert.Equal(t, QuestionHash("How do I reset?"), QuestionHash("  how   do i RESET?  "))
	assert.NotEqual(t, QuestionHash("How do I reset?"), QuestionHash("Where is my order?"))
	assert.Len(t, QuestionHash("x"), 64)
}
