package jobs

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishSubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	ch := hub.Subscribe("job-1")
	hub.Publish(Event{Type: EventProgress, JobID: "job-1", Current: 1, Total: 5})
	hub.Publish(Event{Type: EventComplete, JobID: "job-1", Processed: 5})

	first := <-ch
	assert.Equal(t, EventProgress, first.Type)
	assert.Equal(t, 1, first.Current)

	second := <-ch
	assert.Equal(t, EventComplete, second.Type)
	assert.Equal(t, 5, second.Processed)
}

func TestHubIsolatesJobs(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	one := hub.Subscribe("job-1")
	two := hub.Subscribe("job-2")

	hub.Publish(Event{Type: EventProgress, JobID: "job-1", Current: 1})

	require.Len(t, one, 1)
	assert.Empty(t, two)
}

func TestHubMultipleSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	a := hub.Subscribe("job-1")
	b := hub.Subscribe("job-1")

	hub.Publish(Event{Type: EventProgress, JobID: "job-1", Current: 3})

	assert.Equal(t, 3, (<-a).Current)
	assert.Equal(t, 3, (<-b).Current)
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	// Must not block or panic
	hub.Publish(Event{Type: EventProgress, JobID: "nobody", Current: 1})
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	ch := hub.Subscribe("job-1")
	hub.Unsubscribe("job-1", ch)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe reaches nobody
	hub.Publish(Event{Type: EventComplete, JobID: "job-1"})
}

func TestHubSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	ch := hub.Subscribe("job-1")

	// Overflow the subscriber buffer; Publish must never block
	for i := 0; i < 1000; i++ {
		hub.Publish(Event{Type: EventProgress, JobID: "job-1", Current: i})
	}

	// The subscriber still sees an ordered prefix of the stream
	prev := -1
	for len(ch) > 0 {
		e := <-ch
		assert.Greater(t, e.Current, prev)
		prev = e.Current
	}
	assert.Greater(t, prev, -1)
}
