// Package worker runs the remote stage workers: each consumes its role queue,
// acknowledges every request, and replies with exactly one result or error
// envelope while publishing liveness heartbeats.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"pulseguard/internal/delegate"
	"pulseguard/internal/logger"
	"pulseguard/pkg/models"
)

// Config configures a stage worker.
type Config struct {
	Prefix            string
	WorkerID          string
	BlockTimeout      time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTTL      time.Duration
	Concurrency       int
}

func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "pulseguard"
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.HeartbeatTTL <= 0 {
		c.HeartbeatTTL = 3 * c.HeartbeatInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// sendReply pushes one envelope to a reply queue. Failures are logged and
// swallowed; the caller times out and falls back on its own.
func sendReply(ctx context.Context, transport delegate.Transport, replyTo string, envelope models.Envelope) {
	if replyTo == "" {
		return
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		logger.Errorf("Marshal reply envelope for %s: %v", envelope.RequestID, err)
		return
	}
	if err := transport.Push(ctx, replyTo, raw); err != nil {
		logger.Errorf("Push reply for %s: %v", envelope.RequestID, err)
	}
}

func ackEnvelope(requestID, worker string) models.Envelope {
	return models.Envelope{
		Type:      models.MessageAck,
		RequestID: requestID,
		Worker:    worker,
		Timestamp: time.Now().UTC(),
	}
}

func resultEnvelope(requestID, worker string, payload interface{}) (models.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{
		Type:      models.MessageResult,
		RequestID: requestID,
		Worker:    worker,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

func errorEnvelope(requestID, worker, errType string, err error) models.Envelope {
	return models.Envelope{
		Type:      models.MessageError,
		RequestID: requestID,
		Worker:    worker,
		Timestamp: time.Now().UTC(),
		Error:     &models.RemoteError{Type: errType, Message: err.Error()},
	}
}
