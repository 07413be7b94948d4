package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mtr002/linkboard/internal/logger"
)

const (
	BulkSubmitSubject    = "links.bulk.submit"
	BulkCompletedSubject = "links.bulk.completed"
)

// Client is the API side of the queue: it publishes submissions and
// listens for completion statuses.
type Client struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

func NewClient(url string) (*Client, error) {
	conn, err := connect(url, "linkboard-api")
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func connect(url, name string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

func (c *Client) PublishBulkSubmission(msg *BulkSubmissionMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal bulk submission message: %w", err)
	}

	if err := c.conn.Publish(BulkSubmitSubject, data); err != nil {
		return fmt.Errorf("failed to publish bulk submission: %w", err)
	}
	return nil
}

// SubscribeBulkStatus calls handler for every completion status.
func (c *Client) SubscribeBulkStatus(handler func(*BulkStatusMessage)) error {
	sub, err := c.conn.Subscribe(BulkCompletedSubject, func(msg *nats.Msg) {
		status, err := DecodeBulkStatus(msg.Data)
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("Discarding malformed bulk status")
			return
		}
		handler(status)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", BulkCompletedSubject, err)
	}
	c.sub = sub
	return nil
}

func (c *Client) Close() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

func DecodeBulkSubmission(data []byte) (*BulkSubmissionMessage, error) {
	var msg BulkSubmissionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid bulk submission: %w", err)
	}
	if msg.BatchID == "" {
		return nil, fmt.Errorf("invalid bulk submission: missing batch_id")
	}
	return &msg, nil
}

func DecodeBulkStatus(data []byte) (*BulkStatusMessage, error) {
	var msg BulkStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid bulk status: %w", err)
	}
	return &msg, nil
}
