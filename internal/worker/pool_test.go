package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mtr002/linkboard/internal/links"
	"github.com/mtr002/linkboard/internal/nats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProcessor struct {
	mu      sync.Mutex
	batches []string
	fail    map[string]error
	block   chan struct{}
}

func (f *fakeProcessor) CreateBulk(ctx context.Context, req links.BulkRequest) (*links.BulkResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, req.BatchID)
	if err, ok := f.fail[req.BatchID]; ok {
		return nil, err
	}
	return &links.BulkResult{BatchID: req.BatchID, Total: len(req.MartCodes) * len(req.AdCreatives)}, nil
}

type capturePublisher struct {
	mu       sync.Mutex
	statuses map[string]*nats.BulkStatusMessage
}

func (c *capturePublisher) PublishBulkStatus(msg *nats.BulkStatusMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statuses == nil {
		c.statuses = make(map[string]*nats.BulkStatusMessage)
	}
	c.statuses[msg.BatchID] = msg
	return nil
}

func submission(id string) *nats.BulkSubmissionMessage {
	return &nats.BulkSubmissionMessage{BatchID: id, MartCodes: []string{"M001", "M002"}, AdCreatives: []string{"a"}}
}

func TestPool_ProcessesQueuedBatches(t *testing.T) {
	processor := &fakeProcessor{fail: map[string]error{"b-3": errors.New("too many tasks")}}
	publisher := &capturePublisher{}
	pool := NewPool(processor, publisher, 2, 10)
	pool.Start()

	for _, id := range []string{"b-1", "b-2", "b-3"} {
		require.NoError(t, pool.Submit(submission(id)))
	}
	pool.Stop()

	assert.ElementsMatch(t, []string{"b-1", "b-2", "b-3"}, processor.batches)
	require.Len(t, publisher.statuses, 3)
	assert.Equal(t, nats.StatusCompleted, publisher.statuses["b-1"].Status)
	assert.Equal(t, 2, publisher.statuses["b-1"].Total)
	assert.Equal(t, nats.StatusFailed, publisher.statuses["b-3"].Status)
	assert.Equal(t, "too many tasks", publisher.statuses["b-3"].Error)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(&fakeProcessor{}, nil, 1, 1)
	pool.Start()
	pool.Stop()
	pool.Stop()

	assert.ErrorIs(t, pool.Submit(submission("b-1")), ErrPoolStopped)
}

func TestPool_QueueFull(t *testing.T) {
	processor := &fakeProcessor{block: make(chan struct{})}
	pool := NewPool(processor, nil, 1, 1)

	require.NoError(t, pool.Submit(submission("b-1")))
	assert.ErrorIs(t, pool.Submit(submission("b-2")), ErrPoolFull)

	pool.Start()
	close(processor.block)
	pool.Stop()
	assert.Equal(t, []string{"b-1"}, processor.batches)
}

func TestPool_AbortCancelsInFlight(t *testing.T) {
	processor := &fakeProcessor{block: make(chan struct{})}
	publisher := &capturePublisher{}
	pool := NewPool(processor, publisher, 1, 1)
	pool.Start()

	require.NoError(t, pool.Submit(submission("b-1")))
	pool.Abort()

	require.Len(t, publisher.statuses, 1)
	assert.Equal(t, nats.StatusFailed, publisher.statuses["b-1"].Status)
}

func TestPool_TracksBatchStatus(t *testing.T) {
	processor := &fakeProcessor{block: make(chan struct{}), fail: map[string]error{"b-2": errors.New("boom")}}
	tracker := NewTracker(10)
	pool := NewPool(processor, nil, 1, 2)
	pool.SetTracker(tracker)

	require.NoError(t, pool.Submit(submission("b-1")))
	require.NoError(t, pool.Submit(submission("b-2")))
	assert.ErrorIs(t, pool.Submit(submission("b-3")), ErrPoolFull)

	status, ok := tracker.Get("b-1")
	require.True(t, ok)
	assert.Equal(t, nats.StatusQueued, status.Status)

	status, ok = tracker.Get("b-3")
	require.True(t, ok)
	assert.Equal(t, nats.StatusFailed, status.Status)
	assert.Equal(t, ErrPoolFull.Error(), status.Error)

	pool.Start()
	close(processor.block)
	pool.Stop()

	status, _ = tracker.Get("b-1")
	assert.Equal(t, nats.StatusCompleted, status.Status)
	assert.Equal(t, 2, status.Total)
	status, _ = tracker.Get("b-2")
	assert.Equal(t, nats.StatusFailed, status.Status)
	assert.Equal(t, "boom", status.Error)

	require.ErrorIs(t, pool.Submit(submission("b-4")), ErrPoolStopped)
	status, _ = tracker.Get("b-4")
	assert.Equal(t, nats.StatusFailed, status.Status)
}
