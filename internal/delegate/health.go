package delegate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"pulseguard/internal/logger"
	"pulseguard/pkg/models"
)

// HealthRegistry tracks the last-known liveness of remote workers. CheckHealth
// probes the transport; IsHealthy and Snapshot only read the in-memory record,
// so callers on the hot path never block on the transport.
type HealthRegistry struct {
	transport Transport
	prefix    string
	timeout   time.Duration
	maxAge    time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	known map[models.WorkerRole]models.WorkerHealth
}

// NewHealthRegistry builds a registry. A non-positive probe timeout defaults
// to five seconds and a non-positive staleness window to fifteen.
func NewHealthRegistry(transport Transport, prefix string, timeout, maxAge time.Duration) *HealthRegistry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxAge <= 0 {
		maxAge = 15 * time.Second
	}
	return &HealthRegistry{
		transport: transport,
		prefix:    prefix,
		timeout:   timeout,
		maxAge:    maxAge,
		now:       time.Now,
		known:     make(map[models.WorkerRole]models.WorkerHealth),
	}
}

// CheckHealth probes the heartbeat key of a role and records the outcome.
// Transport failures map to unreachable, a missing key to not_found, and a
// stale heartbeat to unhealthy.
func (r *HealthRegistry) CheckHealth(ctx context.Context, role models.WorkerRole) models.WorkerHealth {
	probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	health := models.WorkerHealth{Role: role, Status: models.HealthHealthy}

	raw, err := r.transport.Get(probeCtx, HeartbeatKey(r.prefix, role))
	switch {
	case err != nil:
		logger.Warnf("Health probe for %s failed: %v", role, err)
		health.Status = models.HealthUnreachable
	case raw == nil:
		health.Status = models.HealthNotFound
	default:
		if err := json.Unmarshal(raw, &health); err != nil {
			logger.Warnf("Malformed heartbeat for %s: %v", role, err)
			health = models.WorkerHealth{Role: role, Status: models.HealthUnhealthy}
		} else {
			health.Role = role
			if r.now().Sub(health.LastHeartbeat) > r.maxAge {
				health.Status = models.HealthUnhealthy
			} else {
				health.Status = models.HealthHealthy
			}
		}
	}

	r.mu.Lock()
	r.known[role] = health
	r.mu.Unlock()
	return health
}

// IsHealthy reports the last-known status without probing the transport.
// An unseen role is not healthy.
func (r *HealthRegistry) IsHealthy(role models.WorkerRole) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.known[role]
	return ok && h.Status == models.HealthHealthy
}

// Snapshot returns the last-known health of every observed role.
func (r *HealthRegistry) Snapshot() map[models.WorkerRole]models.WorkerHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.WorkerRole]models.WorkerHealth, len(r.known))
	for role, h := range r.known {
		out[role] = h
	}
	return out
}
