package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr002/linkboard/internal/nats"
)

func TestTracker_ForgetsOldestBeyondLimit(t *testing.T) {
	tracker := NewTracker(2)
	tracker.Record(&nats.BulkStatusMessage{BatchID: "b-1", Status: nats.StatusQueued})
	tracker.Record(&nats.BulkStatusMessage{BatchID: "b-2", Status: nats.StatusQueued})
	tracker.Record(&nats.BulkStatusMessage{BatchID: "b-1", Status: nats.StatusCompleted})
	tracker.Record(&nats.BulkStatusMessage{BatchID: "b-3", Status: nats.StatusQueued})

	_, ok := tracker.Get("b-1")
	assert.False(t, ok, "b-1 was recorded first and must be evicted")

	status, ok := tracker.Get("b-2")
	require.True(t, ok)
	assert.Equal(t, nats.StatusQueued, status.Status)
	_, ok = tracker.Get("b-3")
	assert.True(t, ok)
}

func TestTracker_GetReturnsCopy(t *testing.T) {
	tracker := NewTracker(0)
	tracker.Record(&nats.BulkStatusMessage{BatchID: "b-1", Status: nats.StatusQueued})

	status, ok := tracker.Get("b-1")
	require.True(t, ok)
	status.Status = nats.StatusFailed

	again, _ := tracker.Get("b-1")
	assert.Equal(t, nats.StatusQueued, again.Status)
}
