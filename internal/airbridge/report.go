package airbridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/metrics"
)

// Report task states.
const (
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

var errStillPending = errors.New("airbridge: report still pending")

// ReportQuery selects an actuals report.
type ReportQuery struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Metrics  []string `json:"metrics"`
	GroupBys []string `json:"groupBys"`
}

// ReportTask carries the report state and the continuation token.
type ReportTask struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

type ReportRow struct {
	GroupBys []string           `json:"groupBys"`
	Values   map[string]float64 `json:"values"`
}

type ReportResponse struct {
	Task    ReportTask `json:"task"`
	Actuals struct {
		Data struct {
			Rows []ReportRow `json:"rows"`
		} `json:"data"`
	} `json:"actuals"`
}

// Rows returns the report rows, empty until the task succeeds.
func (r *ReportResponse) Rows() []ReportRow {
	return r.Actuals.Data.Rows
}

// Pending reports whether the report can be polled again.
func (r *ReportResponse) Pending() bool {
	return r.Task.Status == StatusPending && r.Task.TaskID != ""
}

func (c *Client) reportPath() string {
	return "/reports/api/v5/apps/" + url.PathEscape(c.appName) + "/actuals/query"
}

// RequestReport submits a report query and returns the first response.
func (c *Client) RequestReport(ctx context.Context, q ReportQuery) (*ReportResponse, error) {
	var resp ReportResponse
	if err := c.do(ctx, http.MethodPost, c.reportPath(), q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) reportStatus(ctx context.Context, taskID string) (*ReportResponse, error) {
	var resp ReportResponse
	if err := c.do(ctx, http.MethodGet, c.reportPath()+"/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PollReport requests the report status until it leaves PENDING, the response
// stops carrying a task id, or the attempt budget runs out. The last payload is
// returned in every one of those cases. A failed request aborts the loop.
func (c *Client) PollReport(ctx context.Context, taskID string) (*ReportResponse, error) {
	return c.poll(ctx, taskID, c.pollMaxAttempts)
}

func (c *Client) poll(ctx context.Context, taskID string, maxAttempts int) (*ReportResponse, error) {
	if taskID == "" {
		return nil, errors.New("airbridge: task id is required")
	}

	var (
		last     *ReportResponse
		attempts int
		token    = taskID
	)

	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewConstant(c.pollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		resp, err := c.reportStatus(ctx, token)
		if err != nil {
			return err
		}
		last = resp
		if resp.Pending() {
			token = resp.Task.TaskID
			return retry.RetryableError(errStillPending)
		}
		return nil
	})
	metrics.ReportPollAttempts.Observe(float64(attempts))

	if err != nil && !errors.Is(err, errStillPending) {
		return nil, fmt.Errorf("airbridge: poll report %s: %w", taskID, err)
	}

	logger.Logger.Debug().
		Str("task_id", taskID).
		Int("attempts", attempts).
		Str("status", last.Task.Status).
		Msg("Report poll finished")
	return last, nil
}

// FetchReport submits q and polls it to a terminal state when needed. The
// submission counts as the first attempt, so the status requests wait one
// poll interval and share the remaining budget.
func (c *Client) FetchReport(ctx context.Context, q ReportQuery) (*ReportResponse, error) {
	resp, err := c.RequestReport(ctx, q)
	if err != nil {
		return nil, err
	}
	if !resp.Pending() || c.pollMaxAttempts <= 1 {
		return resp, nil
	}

	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	return c.poll(ctx, resp.Task.TaskID, c.pollMaxAttempts-1)
}
