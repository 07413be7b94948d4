package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mtr002/linkboard/internal/logger"
)

// WorkerQueue is the queue group shared by worker processes so each
// submission is handled once.
const WorkerQueue = "linkboard-workers"

// Server is the worker side of the queue.
type Server struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

func NewServer(url string) (*Server, error) {
	conn, err := connect(url, "linkboard-worker")
	if err != nil {
		return nil, err
	}
	return &Server{conn: conn}, nil
}

// Subscribe hands every decoded submission to handler.
func (s *Server) Subscribe(handler func(*BulkSubmissionMessage)) error {
	sub, err := s.conn.QueueSubscribe(BulkSubmitSubject, WorkerQueue, func(msg *nats.Msg) {
		submission, err := DecodeBulkSubmission(msg.Data)
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("Discarding malformed bulk submission")
			return
		}
		handler(submission)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to NATS: %w", err)
	}

	s.sub = sub
	return nil
}

func (s *Server) PublishBulkStatus(msg *BulkStatusMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal bulk status message: %w", err)
	}
	if err := s.conn.Publish(BulkCompletedSubject, data); err != nil {
		return fmt.Errorf("failed to publish bulk status: %w", err)
	}
	return nil
}

// Unsubscribe stops delivery of new submissions while keeping the
// connection open for status publishing.
func (s *Server) Unsubscribe() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
		s.sub = nil
	}
}

func (s *Server) Close() {
	s.Unsubscribe()
	if s.conn != nil {
		_ = s.conn.Flush()
		s.conn.Close()
	}
}
