package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mtr002/linkboard/internal/links"
	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/metrics"
	"github.com/mtr002/linkboard/internal/nats"
)

var (
	ErrPoolFull    = errors.New("worker queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// BulkProcessor runs one bulk batch.
type BulkProcessor interface {
	CreateBulk(ctx context.Context, req links.BulkRequest) (*links.BulkResult, error)
}

// StatusPublisher reports a finished batch.
type StatusPublisher interface {
	PublishBulkStatus(msg *nats.BulkStatusMessage) error
}

// Pool processes queued bulk submissions with a fixed number of workers.
type Pool struct {
	processor   BulkProcessor
	publisher   StatusPublisher
	tracker     *Tracker
	queue       chan *nats.BulkSubmissionMessage
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	workerCount int

	mu      sync.RWMutex
	stopped bool
}

func NewPool(processor BulkProcessor, publisher StatusPublisher, workerCount, queueSize int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		processor:   processor,
		publisher:   publisher,
		queue:       make(chan *nats.BulkSubmissionMessage, max(queueSize, 1)),
		ctx:         ctx,
		cancel:      cancel,
		workerCount: max(workerCount, 1),
	}
}

// SetTracker records queued and finished batches in t. Call before Start.
func (p *Pool) SetTracker(t *Tracker) {
	p.tracker = t
}

func (p *Pool) Start() {
	logger.Logger.Info().Int("worker_count", p.workerCount).Msg("Starting worker pool")
	metrics.ActiveQueueWorkers.Set(float64(p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a batch without blocking.
func (p *Pool) Submit(msg *nats.BulkSubmissionMessage) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.track(nats.NewBulkStatus(msg.BatchID, nil, ErrPoolStopped))
		return ErrPoolStopped
	}
	// recorded before the send so a fast worker cannot be overwritten
	p.track(&nats.BulkStatusMessage{BatchID: msg.BatchID, Status: nats.StatusQueued})
	select {
	case p.queue <- msg:
		return nil
	default:
		p.track(nats.NewBulkStatus(msg.BatchID, nil, ErrPoolFull))
		return ErrPoolFull
	}
}

func (p *Pool) track(status *nats.BulkStatusMessage) {
	if p.tracker != nil {
		p.tracker.Record(status)
	}
}

// Stop lets queued batches finish, then waits for every worker.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	logger.Logger.Info().Msg("Stopping worker pool")
	p.wg.Wait()
	p.cancel()
	metrics.ActiveQueueWorkers.Set(0)
	logger.Logger.Info().Msg("Worker pool stopped")
}

// Abort cancels in-flight batches and stops the pool.
func (p *Pool) Abort() {
	p.cancel()
	p.Stop()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger.Logger.Debug().Int("worker_id", id).Msg("Worker started")
	for msg := range p.queue {
		p.process(id, msg)
	}
	logger.Logger.Debug().Int("worker_id", id).Msg("Worker shutting down")
}

func (p *Pool) process(workerID int, msg *nats.BulkSubmissionMessage) {
	log := logger.WithBatchID(msg.BatchID)
	start := time.Now()
	log.Info().
		Int("worker_id", workerID).
		Str("correlation_id", msg.CorrelationID).
		Int("marts", len(msg.MartCodes)).
		Int("creatives", len(msg.AdCreatives)).
		Msg("Processing bulk batch")

	result, err := p.processor.CreateBulk(p.ctx, msg.Request())
	status := nats.NewBulkStatus(msg.BatchID, result, err)
	metrics.AsyncBatchesTotal.WithLabelValues(status.Status).Inc()
	p.track(status)

	if err != nil {
		log.Error().Int("worker_id", workerID).Err(err).Msg("Bulk batch failed")
	} else {
		log.Info().
			Int("worker_id", workerID).
			Int("created", status.Created).
			Int("existing", status.Existing).
			Int("failed", len(status.Errors)).
			Dur("duration", time.Since(start)).
			Msg("Bulk batch completed")
	}

	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishBulkStatus(status); err != nil {
		log.Error().Int("worker_id", workerID).Err(err).Msg("Failed to publish bulk status")
	}
}
