package worker

import (
	"sync"

	"github.com/mtr002/linkboard/internal/nats"
)

const defaultTrackerLimit = 1024

// Tracker remembers the latest status of recent batches. Once limit batches
// are held the oldest one is forgotten.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]*nats.BulkStatusMessage
	order    []string
	limit    int
}

func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = defaultTrackerLimit
	}
	return &Tracker{
		statuses: make(map[string]*nats.BulkStatusMessage),
		limit:    limit,
	}
}

func (t *Tracker) Record(msg *nats.BulkStatusMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.statuses[msg.BatchID]; !ok {
		t.order = append(t.order, msg.BatchID)
		if len(t.order) > t.limit {
			delete(t.statuses, t.order[0])
			t.order = t.order[1:]
		}
	}
	stored := *msg
	t.statuses[msg.BatchID] = &stored
}

// Get returns a copy of the batch status.
func (t *Tracker) Get(batchID string) (*nats.BulkStatusMessage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	msg, ok := t.statuses[batchID]
	if !ok {
		return nil, false
	}
	out := *msg
	return &out, true
}
