package models

import "time"

// Direction classifies who sent an email relative to the connected mailbox.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionUnknown  Direction = "unknown"
)

// FilteringStatus is the eligibility state of an email for question mining.
type FilteringStatus string

const (
	FilteringPending     FilteringStatus = "pending"
	FilteringQualified   FilteringStatus = "qualified"
	FilteringFilteredOut FilteringStatus = "filtered_out"
)

// Filtering reasons written by the eligibility classifier.
const (
	ReasonFromBusinessAccount = "Email from connected business account"
	ReasonNoBusinessResponse  = "No response from business"
)

// Email represents one ingested mailbox message
type Email struct {
	ID                int64           `db:"id" json:"id"`
	MessageID         string          `db:"message_id" json:"message_id"`
	ThreadID          *string         `db:"thread_id" json:"thread_id,omitempty"`
	SenderEmail       string          `db:"sender_email" json:"sender_email"`
	SenderName        string          `db:"sender_name" json:"sender_name"`
	Subject           string          `db:"subject" json:"subject"`
	NormalizedSubject string          `db:"normalized_subject" json:"-"`
	BodyText          string          `db:"body_text" json:"body_text"`
	ReceivedAt        time.Time       `db:"received_at" json:"received_at"`
	Direction         Direction       `db:"direction" json:"direction"`
	HasResponse       bool            `db:"has_response" json:"has_response"`
	FilteringStatus   FilteringStatus `db:"filtering_status" json:"filtering_status"`
	FilteringReason   string          `db:"filtering_reason" json:"filtering_reason"`
	ProcessedAt       *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Question is one candidate customer question extracted from a qualified email
type Question struct {
	ID            int64     `db:"id" json:"id"`
	SourceEmailID int64     `db:"source_email_id" json:"source_email_id"`
	Text          string    `db:"text" json:"text"`
	TextHash      string    `db:"text_hash" json:"-"`
	Confidence    float64   `db:"confidence" json:"confidence"`
	Category      string    `db:"category" json:"category"`
	Embedding     []float64 `db:"-" json:"-"` // stored as a JSON column, nullable until indexed
	SenderEmail   string    `db:"sender_email" json:"sender_email"`
	SenderName    string    `db:"sender_name" json:"sender_name"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// HasEmbedding reports whether the question has been vectorized yet
func (q *Question) HasEmbedding() bool {
	return len(q.Embedding) > 0
}

// FAQGroup is a cluster of semantically equivalent questions with one synthesized answer
type FAQGroup struct {
	ID              int64     `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Answer          string    `db:"answer" json:"answer"`
	Category        string    `db:"category" json:"category"`
	QuestionCount   int       `db:"question_count" json:"question_count"`
	AvgConfidence   float64   `db:"avg_confidence" json:"avg_confidence"`
	MaxConfidence   float64   `db:"max_confidence" json:"-"`
	SortOrder       int       `db:"sort_order" json:"sort_order"`
	IsPublished     bool      `db:"is_published" json:"is_published"`
	ViewCount       int       `db:"view_count" json:"view_count"`
	HelpfulCount    int       `db:"helpful_count" json:"helpful_count"`
	NotHelpfulCount int       `db:"not_helpful_count" json:"not_helpful_count"`
	Centroid        []float64 `db:"-" json:"-"` // mean embedding of member questions
	Version         int64     `db:"version" json:"-"` // optimistic-lock counter for group mutation
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// QuestionGroupMembership links a question to its FAQ group, immutable once written
type QuestionGroupMembership struct {
	QuestionID int64     `db:"question_id" json:"question_id"`
	GroupID    int64     `db:"group_id" json:"group_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// JobType identifies the kind of background work a processing job performs.
type JobType string

const (
	JobTypeEmailSync     JobType = "email_sync"
	JobTypeFAQProcessing JobType = "faq_processing"
)

// JobStatus is the lifecycle state of a processing job.
// Completed and error are terminal; retries create a new job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// ProcessingJob is a trackable unit of background work over a batch of emails
type ProcessingJob struct {
	ID             string     `db:"id" json:"id"`
	Type           JobType    `db:"type" json:"type"`
	Status         JobStatus  `db:"status" json:"status"`
	Progress       int        `db:"progress" json:"progress"`
	ProcessedItems int        `db:"processed_items" json:"processed_items"`
	TotalItems     int        `db:"total_items" json:"total_items"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// IsTerminal reports whether the job has reached a final state
func (j *ProcessingJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusError
}

// HealthResponse is the payload for the basic health endpoint
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// DBHealthResponse is the payload for the database health endpoint
type DBHealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ns"`
	Error     string        `json:"error,omitempty"`
}
