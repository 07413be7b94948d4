package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/mtr002/linkboard/internal/interfaces"
	"github.com/mtr002/linkboard/internal/nats"
	"github.com/mtr002/linkboard/internal/worker"
)

const callTimeout = 10 * time.Second

// Client is the API side of the batch service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects lazily; the first call dials addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// PublishBulkSubmission hands a batch to the worker. A full or stopping
// worker is reported as worker.ErrPoolFull or worker.ErrPoolStopped.
func (c *Client) PublishBulkSubmission(msg *nats.BulkSubmissionMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var resp SubmitBulkResponse
	if err := c.conn.Invoke(ctx, submitBulkMethod, msg, &resp); err != nil {
		switch status.Code(err) {
		case codes.ResourceExhausted:
			return fmt.Errorf("batch %s: %w", msg.BatchID, worker.ErrPoolFull)
		case codes.Unavailable:
			return fmt.Errorf("batch %s: %w: %v", msg.BatchID, worker.ErrPoolStopped, err)
		}
		return fmt.Errorf("failed to submit bulk batch: %w", err)
	}
	return nil
}

func (c *Client) GetBatchStatus(ctx context.Context, batchID string) (*nats.BulkStatusMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var resp nats.BulkStatusMessage
	if err := c.conn.Invoke(ctx, getBatchStatusMethod, &GetBatchStatusRequest{BatchID: batchID}, &resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("batch %s: %w", batchID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get batch status: %w", err)
	}
	return &resp, nil
}
