package nats

import (
	"github.com/mtr002/linkboard/internal/links"
)

const (
	StatusQueued    = "queued"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type BulkSubmissionMessage struct {
	BatchID       string   `json:"batch_id"`
	MartCodes     []string `json:"mart_codes"`
	AdCreatives   []string `json:"ad_creatives"`
	Concurrency   int      `json:"concurrency,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

func NewBulkSubmission(req links.BulkRequest, correlationID string) *BulkSubmissionMessage {
	return &BulkSubmissionMessage{
		BatchID:       req.BatchID,
		MartCodes:     req.MartCodes,
		AdCreatives:   req.AdCreatives,
		Concurrency:   req.Concurrency,
		CorrelationID: correlationID,
	}
}

func (m *BulkSubmissionMessage) Request() links.BulkRequest {
	return links.BulkRequest{
		BatchID:     m.BatchID,
		MartCodes:   m.MartCodes,
		AdCreatives: m.AdCreatives,
		Concurrency: m.Concurrency,
	}
}

type BulkStatusMessage struct {
	BatchID  string            `json:"batch_id"`
	Status   string            `json:"status"`
	Total    int               `json:"total"`
	Created  int               `json:"created"`
	Existing int               `json:"existing"`
	Errors   []links.BulkError `json:"errors,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// NewBulkStatus summarizes a finished batch. err is a failure of the batch
// as a whole, not of individual tasks.
func NewBulkStatus(batchID string, result *links.BulkResult, err error) *BulkStatusMessage {
	if err != nil {
		return &BulkStatusMessage{BatchID: batchID, Status: StatusFailed, Error: err.Error()}
	}
	return &BulkStatusMessage{
		BatchID:  result.BatchID,
		Status:   StatusCompleted,
		Total:    result.Total,
		Created:  len(result.Created),
		Existing: len(result.Existing),
		Errors:   result.Errors,
	}
}
