package jobs

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// EventType identifies the three job event shapes consumed by the UI.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one job notification. Progress events for a job are published in
// strictly increasing Current order; the complete (or error) event is always the
// last event for a job.
type Event struct {
	Type  EventType `json:"type"`
	JobID string    `json:"jobId"`

	// progress
	Current           int    `json:"current,omitempty"`
	Total             int    `json:"total,omitempty"`
	QuestionsFound    int    `json:"questionsFound,omitempty"`
	Errors            int    `json:"errors,omitempty"`
	CurrentEmailLabel string `json:"currentEmailLabel,omitempty"`

	// complete
	Processed        int `json:"processed,omitempty"`
	FAQGroupsCreated int `json:"faqGroupsCreated,omitempty"`
	QuestionsGrouped int `json:"questionsGrouped,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// Hub fans job events out to subscribers. Slow subscribers drop events rather
// than block the pipeline; because a single goroutine publishes per job, what a
// subscriber does receive stays in order.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{} // jobID -> channels
	log  zerolog.Logger

	dropped int64
}

// NewHub creates an event hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[chan Event]struct{}),
		log:  logger.With().Str("component", "event_hub").Logger(),
	}
}

// Subscribe creates a subscription channel for one job's events
func (h *Hub) Subscribe(jobID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 256)
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan Event]struct{})
	}
	h.subs[jobID][ch] = struct{}{}

	h.log.Debug().Str("job_id", jobID).Int("subscribers", len(h.subs[jobID])).Msg("subscriber added")
	return ch
}

// Unsubscribe removes a subscription channel and closes it
func (h *Hub) Unsubscribe(jobID string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channels, ok := h.subs[jobID]
	if !ok {
		return
	}

	for c := range channels {
		if c == ch {
			delete(channels, c)
			close(c)
			break
		}
	}

	if len(channels) == 0 {
		delete(h.subs, jobID)
	}
}

// Publish delivers an event to the job's subscribers without blocking
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			atomic.AddInt64(&h.dropped, 1)
			h.log.Warn().
				Str("job_id", event.JobID).
				Str("event_type", string(event.Type)).
				Msg("dropped event due to full buffer")
		}
	}
}
