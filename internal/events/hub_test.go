package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAssignsIncreasingIDs(t *testing.T) {
	h := NewHub(4)

	a := h.Publish(TypeDeployStarted, map[string]string{"endpoint": "siteA"})
	b := h.Publish(TypeDeployFinished, nil)

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.JSONEq(t, `{"endpoint":"siteA"}`, string(a.Data))
	assert.JSONEq(t, `{}`, string(b.Data))
}

func TestSnapshotSinceWrapsRing(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(TypeDeployStarted, i)
	}

	all := h.SnapshotSince(0)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{3, 4, 5}, ids(all))

	tail := h.SnapshotSince(4)
	assert.Equal(t, []int64{5}, ids(tail))

	assert.Empty(t, h.SnapshotSince(5))
}

func TestSubscribeReceivesEvents(t *testing.T) {
	h := NewHub(0)
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.Publish(TypeWebhookIgnored, map[string]string{"branch": "dev"})

	select {
	case ev := <-ch:
		assert.Equal(t, TypeWebhookIgnored, ev.Type)
		var data map[string]string
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, "dev", data["branch"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	assert.Equal(t, 0, h.Subscribers())
	_, open := <-ch
	assert.False(t, open, "channel should be closed after cancel")

	// Cancelling twice is harmless.
	cancel()
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	h := NewHub(10)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			h.Publish(TypeDeployFinished, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func ids(evs []Event) []int64 {
	out := make([]int64, len(evs))
	for i, ev := range evs {
		out[i] = ev.ID
	}
	return out
}
