package database

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"faqminer/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewStore(db, zerolog.Nop()), mock
}

func TestUpsertEmail(t *testing.T) {
	store, mock := newTestStore(t)

	email := &models.Email{
		MessageID:       "msg-1",
		SenderEmail:     "alice@example.com",
		Subject:         "password trouble",
		ReceivedAt:      time.Now(),
		Direction:       models.DirectionUnknown,
		FilteringStatus: models.FilteringPending,
	}

	mock.ExpectQuery("INSERT INTO emails").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	err := store.UpsertEmail(context.Background(), email)
	require.NoError(t, err)
	assert.Equal(t, int64(42), email.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClassification(t *testing.T) {
	store, mock := newTestStore(t)

	email := &models.Email{
		ID:              7,
		Direction:       models.DirectionInbound,
		HasResponse:     true,
		FilteringStatus: models.FilteringQualified,
	}

	mock.ExpectExec("UPDATE emails").
		WithArgs(models.DirectionInbound, true, models.FilteringQualified, "", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateClassification(context.Background(), email)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessed(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE emails SET processed_at").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkProcessed(context.Background(), 9))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertQuestion(t *testing.T) {
	t.Run("new question is inserted", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectQuery("INSERT INTO questions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

		question := &models.Question{SourceEmailID: 1, Text: "How do I reset?", TextHash: "abc"}
		inserted, err := store.InsertQuestion(context.Background(), question)
		require.NoError(t, err)

		assert.True(t, inserted)
		assert.Equal(t, int64(5), question.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate resolves the existing row", func(t *testing.T) {
		store, mock := newTestStore(t)

		// ON CONFLICT DO NOTHING returns no row for a duplicate
		mock.ExpectQuery("INSERT INTO questions").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT id FROM questions").
			WithArgs(int64(1), "abc").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

		question := &models.Question{SourceEmailID: 1, Text: "How do I reset?", TextHash: "abc"}
		inserted, err := store.InsertQuestion(context.Background(), question)
		require.NoError(t, err)

		assert.False(t, inserted)
		assert.Equal(t, int64(5), question.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetQuestionEmbedding(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE questions SET embedding").
		WithArgs("[1,0.5]", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetQuestionEmbedding(context.Background(), 5, []float64{1, 0.5}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListGroupQuestions(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "source_email_id", "text", "text_hash", "confidence", "category",
		"embedding", "sender_email", "sender_name", "created_at",
	}).
		AddRow(1, 10, "How do I reset?", "abc", 0.9, "Account", "[1,0]", "a@example.com", "Alice", now).
		AddRow(2, 11, "Where is my order?", "def", 0.8, "Shipping", nil, "b@example.com", "Bob", now)

	mock.ExpectQuery("SELECT (.+) FROM questions q").
		WithArgs(int64(3)).
		WillReturnRows(rows)

	questions, err := store.ListGroupQuestions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, questions, 2)

	assert.Equal(t, []float64{1, 0}, questions[0].Embedding)
	assert.Nil(t, questions[1].Embedding)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGroup(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("INSERT INTO faq_groups").
		WillReturnRows(sqlmock.NewRows([]string{"id", "sort_order", "version"}).AddRow(3, 7, 1))

	group := &models.FAQGroup{
		Title:         "How do I reset my password?",
		Category:      "Account",
		QuestionCount: 1,
		Centroid:      []float64{1, 0},
	}
	require.NoError(t, store.CreateGroup(context.Background(), group))

	assert.Equal(t, int64(3), group.ID)
	assert.Equal(t, 7, group.SortOrder)
	assert.Equal(t, int64(1), group.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateGroupStats(t *testing.T) {
	t.Run("matching version applies the update", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectExec("UPDATE faq_groups").
			WillReturnResult(sqlmock.NewResult(0, 1))

		group := &models.FAQGroup{ID: 3, QuestionCount: 2, Centroid: []float64{1, 0}}
		ok, err := store.UpdateGroupStats(context.Background(), group, 1)
		require.NoError(t, err)

		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version writes nothing", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectExec("UPDATE faq_groups").
			WillReturnResult(sqlmock.NewResult(0, 0))

		group := &models.FAQGroup{ID: 3, QuestionCount: 2, Centroid: []float64{1, 0}}
		ok, err := store.UpdateGroupStats(context.Background(), group, 1)
		require.NoError(t, err)

		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetGroup(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "title", "answer", "category", "question_count", "avg_confidence",
		"max_confidence", "sort_order", "is_published", "view_count", "helpful_count",
		"not_helpful_count", "centroid", "version", "created_at", "updated_at",
	}).AddRow(3, "How do I reset my password?", "Use the reset link.", "Account",
		2, 0.85, 0.9, 1, true, 10, 4, 1, "[0.5,0.5]", 2, now, now)

	mock.ExpectQuery("SELECT (.+) FROM faq_groups WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(rows)

	group, err := store.GetGroup(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, "How do I reset my password?", group.Title)
	assert.Equal(t, []float64{0.5, 0.5}, group.Centroid)
	assert.Equal(t, int64(2), group.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGroupNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM faq_groups WHERE id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetGroup(context.Background(), 99)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAddFeedback(t *testing.T) {
	t.Run("helpful vote", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE faq_groups SET helpful_count = helpful_count + 1")).
			WithArgs(int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.AddFeedback(context.Background(), 3, true))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not helpful vote", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE faq_groups SET not_helpful_count = not_helpful_count + 1")).
			WithArgs(int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.AddFeedback(context.Background(), 3, false))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReorderGroups(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE faq_groups SET sort_order").
		WithArgs(1, int64(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE faq_groups SET sort_order").
		WithArgs(2, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE faq_groups SET sort_order").
		WithArgs(3, int64(20)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.ReorderGroups(context.Background(), []int64{30, 10, 20}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJob(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO processing_jobs").
		WithArgs("job-1", models.JobTypeFAQProcessing).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	job := &models.ProcessingJob{ID: "job-1", Type: models.JobTypeFAQProcessing}
	require.NoError(t, store.CreateJob(context.Background(), job))

	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.WithinDuration(t, now, job.CreatedAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartJob(t *testing.T) {
	t.Run("pending job starts", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectExec("UPDATE processing_jobs").
			WithArgs(12, "job-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.StartJob(context.Background(), "job-1", 12))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-pending job is rejected", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectExec("UPDATE processing_jobs").
			WithArgs(12, "job-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.StartJob(context.Background(), "job-1", 12)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not pending")
	})
}

func TestFailJobLeavesTerminalStatesAlone(t *testing.T) {
	store, mock := newTestStore(t)

	// The guard clause means failing an already-completed job affects no rows
	mock.ExpectExec("UPDATE processing_jobs").
		WithArgs("boom", "job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.FailJob(context.Background(), "job-1", "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
