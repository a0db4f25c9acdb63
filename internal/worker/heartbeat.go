package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"pulseguard/internal/delegate"
	"pulseguard/internal/logger"
	"pulseguard/pkg/models"
)

// Heartbeat periodically refreshes the liveness key for a worker role. The
// key carries a TTL so a crashed worker disappears on its own.
type Heartbeat struct {
	transport delegate.Transport
	prefix    string
	role      models.WorkerRole
	workerID  string
	interval  time.Duration
	ttl       time.Duration
	started   time.Time

	processed int64
}

// NewHeartbeat builds a heartbeat publisher.
func NewHeartbeat(transport delegate.Transport, cfg Config, role models.WorkerRole) *Heartbeat {
	cfg.applyDefaults()
	return &Heartbeat{
		transport: transport,
		prefix:    cfg.Prefix,
		role:      role,
		workerID:  cfg.WorkerID,
		interval:  cfg.HeartbeatInterval,
		ttl:       cfg.HeartbeatTTL,
		started:   time.Now(),
	}
}

// Add records processed events for the heartbeat payload.
func (h *Heartbeat) Add(n int64) {
	atomic.AddInt64(&h.processed, n)
}

// Run publishes heartbeats until the context is cancelled. The first beat is
// sent immediately so the worker becomes discoverable before its first poll.
func (h *Heartbeat) Run(ctx context.Context) {
	h.publish(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.publish(ctx)
		}
	}
}

func (h *Heartbeat) publish(ctx context.Context) {
	now := time.Now().UTC()
	payload, err := json.Marshal(models.WorkerHealth{
		Role:            h.role,
		WorkerID:        h.workerID,
		Status:          models.HealthHealthy,
		LastHeartbeat:   now,
		UptimeSeconds:   now.Sub(h.started).Seconds(),
		EventsProcessed: atomic.LoadInt64(&h.processed),
	})
	if err != nil {
		logger.Errorf("Marshal heartbeat for %s: %v", h.role, err)
		return
	}
	if err := h.transport.SetWithTTL(ctx, delegate.HeartbeatKey(h.prefix, h.role), payload, h.ttl); err != nil {
		logger.Warnf("Publish heartbeat for %s: %v", h.role, err)
	}
}
