package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mtr002/linkboard/internal/logger"
	"github.com/mtr002/linkboard/internal/nats"
	"github.com/mtr002/linkboard/internal/worker"
)

// Submitter queues a batch without blocking.
type Submitter interface {
	Submit(msg *nats.BulkSubmissionMessage) error
}

// StatusReader looks up the latest status of a batch.
type StatusReader interface {
	Get(batchID string) (*nats.BulkStatusMessage, bool)
}

// BatchServer serves the batch service from a worker pool.
type BatchServer struct {
	pool     Submitter
	statuses StatusReader
}

var _ BatchServiceServer = (*BatchServer)(nil)

func NewBatchServer(pool Submitter, statuses StatusReader) *BatchServer {
	return &BatchServer{pool: pool, statuses: statuses}
}

func (s *BatchServer) SubmitBulk(_ context.Context, req *nats.BulkSubmissionMessage) (*SubmitBulkResponse, error) {
	if req.BatchID == "" {
		return nil, status.Error(codes.InvalidArgument, "batch_id is required")
	}

	log := logger.WithBatchID(req.BatchID)
	if err := s.pool.Submit(req); err != nil {
		log.Error().Err(err).Msg("Bulk batch rejected")
		switch {
		case errors.Is(err, worker.ErrPoolFull):
			return nil, status.Error(codes.ResourceExhausted, err.Error())
		case errors.Is(err, worker.ErrPoolStopped):
			return nil, status.Error(codes.Unavailable, err.Error())
		default:
			return nil, status.Error(codes.Internal, err.Error())
		}
	}

	log.Info().Str("correlation_id", req.CorrelationID).Msg("Bulk batch received over gRPC")
	return &SubmitBulkResponse{BatchID: req.BatchID, Status: nats.StatusQueued}, nil
}

func (s *BatchServer) GetBatchStatus(_ context.Context, req *GetBatchStatusRequest) (*nats.BulkStatusMessage, error) {
	if req.BatchID == "" {
		return nil, status.Error(codes.InvalidArgument, "batch_id is required")
	}
	msg, ok := s.statuses.Get(req.BatchID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "batch %s not found", req.BatchID)
	}
	return msg, nil
}
