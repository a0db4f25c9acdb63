package delegate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pulseguard/internal/logger"
	"pulseguard/internal/metrics"
	"pulseguard/pkg/models"
)

// Status is the terminal outcome of one delegation attempt.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusTimeout   Status = "timeout"
	StatusUnhealthy Status = "unhealthy"
	StatusError     Status = "error"
)

// ClientConfig configures a delegation client.
type ClientConfig struct {
	Prefix       string
	AckTimeout   time.Duration
	StageTimeout time.Duration
}

func (c *ClientConfig) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "pulseguard"
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = 30 * time.Second
	}
}

// Client delegates one stage request to a remote worker and waits for the
// correlated ack and result on a per-request reply queue.
type Client struct {
	transport Transport
	registry  *HealthRegistry
	cfg       ClientConfig
	now       func() time.Time
}

// NewClient builds a delegation client.
func NewClient(transport Transport, registry *HealthRegistry, cfg ClientConfig) *Client {
	cfg.applyDefaults()
	return &Client{transport: transport, registry: registry, cfg: cfg, now: time.Now}
}

// Registry exposes the health registry backing this client.
func (c *Client) Registry() *HealthRegistry { return c.registry }

// Delegate sends a request to the role queue and waits for the reply. The
// request must marshal to JSON; on success the result payload is unmarshaled
// into result. An unhealthy worker fails fast without enqueueing anything.
func (c *Client) Delegate(ctx context.Context, role models.WorkerRole, requestID string, request, result interface{}) (status Status, err error) {
	defer func() {
		metrics.Delegations.WithLabelValues(string(role), string(status)).Inc()
	}()

	health := c.registry.CheckHealth(ctx, role)
	if health.Status != models.HealthHealthy {
		return StatusUnhealthy, fmt.Errorf("worker %s is %s", role, health.Status)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return StatusError, fmt.Errorf("marshal %s request: %w", role, err)
	}
	if err := c.transport.Push(ctx, QueueKey(c.cfg.Prefix, role), payload); err != nil {
		return StatusError, fmt.Errorf("enqueue %s request: %w", role, err)
	}

	replyQueue := ReplyKey(c.cfg.Prefix, requestID)
	deadline := c.now().Add(c.cfg.StageTimeout)

	envelope, err := c.awaitAck(ctx, role, requestID, replyQueue)
	if err != nil {
		return StatusTimeout, err
	}

	// A fast worker may deliver the result before the ack wait returns.
	if envelope == nil {
		envelope, err = c.awaitOutcome(ctx, requestID, replyQueue, deadline)
		if err != nil {
			return StatusTimeout, fmt.Errorf("await %s result: %w", role, err)
		}
	}

	if envelope.Type == models.MessageError {
		return StatusError, fmt.Errorf("worker %s reported failure: %w", role, envelope.Error)
	}
	if err := json.Unmarshal(envelope.Payload, result); err != nil {
		return StatusError, fmt.Errorf("decode %s result: %w", role, err)
	}
	return StatusSuccess, nil
}

// awaitAck waits for the ack envelope. It returns a non-nil envelope when the
// worker skipped straight to a result or error.
func (c *Client) awaitAck(ctx context.Context, role models.WorkerRole, requestID, replyQueue string) (*models.Envelope, error) {
	ackDeadline := c.now().Add(c.cfg.AckTimeout)
	for {
		remaining := ackDeadline.Sub(c.now())
		if remaining <= 0 {
			return nil, fmt.Errorf("no ack from %s within %s", role, c.cfg.AckTimeout)
		}
		envelope, err := c.popEnvelope(ctx, requestID, replyQueue, remaining)
		if err != nil {
			return nil, err
		}
		if envelope == nil {
			continue
		}
		if envelope.Type == models.MessageAck {
			return nil, nil
		}
		return envelope, nil
	}
}

func (c *Client) awaitOutcome(ctx context.Context, requestID, replyQueue string, deadline time.Time) (*models.Envelope, error) {
	for {
		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return nil, fmt.Errorf("no result within stage timeout")
		}
		envelope, err := c.popEnvelope(ctx, requestID, replyQueue, remaining)
		if err != nil {
			return nil, err
		}
		if envelope == nil {
			continue
		}
		if envelope.Type == models.MessageAck {
			// Duplicate ack, keep waiting.
			continue
		}
		return envelope, nil
	}
}

// popEnvelope pops one reply, discarding frames that fail to decode or that
// carry a foreign request id.
func (c *Client) popEnvelope(ctx context.Context, requestID, replyQueue string, wait time.Duration) (*models.Envelope, error) {
	raw, err := c.transport.Pop(ctx, replyQueue, wait)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var envelope models.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		logger.Warnf("Discarding malformed reply on %s: %v", replyQueue, err)
		return nil, nil
	}
	if envelope.RequestID != requestID {
		logger.Warnf("Discarding reply for foreign request %s on %s", envelope.RequestID, replyQueue)
		return nil, nil
	}
	return &envelope, nil
}
