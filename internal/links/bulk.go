package links

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtr002/linkboard/internal/batch"
	"github.com/mtr002/linkboard/internal/interfaces"
	"github.com/mtr002/linkboard/internal/logger"
)

// Task is one mart / creative pair of a bulk request.
type Task struct {
	MartCode   string `json:"mart_code"`
	AdCreative string `json:"ad_creative"`
}

// BulkRequest asks for a link for every mart × creative combination.
type BulkRequest struct {
	BatchID     string   `json:"batch_id,omitempty"`
	MartCodes   []string `json:"mart_codes"`
	AdCreatives []string `json:"ad_creatives"`
	Concurrency int      `json:"concurrency,omitempty"`
}

type BulkError struct {
	MartCode   string `json:"mart_code"`
	AdCreative string `json:"ad_creative"`
	Error      string `json:"error"`
}

type BulkResult struct {
	BatchID  string             `json:"batch_id"`
	Total    int                `json:"total"`
	Created  []*interfaces.Link `json:"created"`
	Existing []*interfaces.Link `json:"existing"`
	Errors   []BulkError        `json:"errors"`
	Duration string             `json:"duration"`
}

// BuildTasks expands the request into tasks, marts outer and creatives inner.
// Blank and repeated values are dropped.
func BuildTasks(req BulkRequest) []Task {
	marts := uniqueTrimmed(req.MartCodes)
	creatives := uniqueTrimmed(req.AdCreatives)

	tasks := make([]Task, 0, len(marts)*len(creatives))
	for _, mart := range marts {
		for _, creative := range creatives {
			tasks = append(tasks, Task{MartCode: mart, AdCreative: creative})
		}
	}
	return tasks
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Validate checks the request and returns its tasks.
func (m *Manager) Validate(req BulkRequest) ([]Task, error) {
	tasks := BuildTasks(req)
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: at least one mart code and one ad creative are required", ErrInvalidRequest)
	}
	if len(tasks) > m.opts.MaxBulkTasks {
		return nil, fmt.Errorf("%w: %d links requested, limit is %d", ErrInvalidRequest, len(tasks), m.opts.MaxBulkTasks)
	}
	return tasks, nil
}

type taskOutcome struct {
	link    *interfaces.Link
	created bool
}

// CreateBulk creates a link for every task of the request. A failing task is
// reported in Errors and does not stop the others.
func (m *Manager) CreateBulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	tasks, err := m.Validate(req)
	if err != nil {
		return nil, err
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}
	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = m.opts.BulkConcurrency
	}

	log := logger.WithBatchID(batchID)
	log.Info().
		Int("tasks", len(tasks)).
		Int("concurrency", concurrency).
		Msg("Bulk link creation started")

	startTime := time.Now()
	res := batch.Run(ctx, tasks, concurrency, func(ctx context.Context, t Task) (taskOutcome, error) {
		link, created, err := m.Create(ctx, t.MartCode, t.AdCreative)
		return taskOutcome{link: link, created: created}, err
	})

	result := &BulkResult{
		BatchID:  batchID,
		Total:    len(tasks),
		Created:  []*interfaces.Link{},
		Existing: []*interfaces.Link{},
		Errors:   []BulkError{},
		Duration: time.Since(startTime).Round(time.Millisecond).String(),
	}
	for _, out := range res.Succeeded {
		if out.created {
			result.Created = append(result.Created, out.link)
		} else {
			result.Existing = append(result.Existing, out.link)
		}
	}
	for _, f := range res.Failed {
		log.Warn().
			Str("mart_code", f.Task.MartCode).
			Str("ad_creative", f.Task.AdCreative).
			Err(f.Err).
			Msg("Bulk task failed")
		result.Errors = append(result.Errors, BulkError{
			MartCode:   f.Task.MartCode,
			AdCreative: f.Task.AdCreative,
			Error:      f.Err.Error(),
		})
	}

	log.Info().
		Int("created", len(result.Created)).
		Int("existing", len(result.Existing)).
		Int("failed", len(result.Errors)).
		Str("duration", result.Duration).
		Msg("Bulk link creation finished")
	m.notify(EventBulkCompleted, result)
	return result, nil
}
