// Package delegate implements stage delegation between the coordinator and
// remote workers over list queues: requests are pushed to a per-role queue,
// replies come back on a per-request reply queue, and workers publish
// heartbeat keys with a TTL.
package delegate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pulseguard/pkg/models"
)

// Transport is the queue and key-value surface delegation runs on.
// Pop returns (nil, nil) when the wait times out with no message; Get returns
// (nil, nil) when the key is absent or expired.
type Transport interface {
	Push(ctx context.Context, queue string, payload []byte) error
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// QueueKey names the request queue for a worker role.
func QueueKey(prefix string, role models.WorkerRole) string {
	return prefix + ":queue:" + string(role)
}

// ReplyKey names the reply queue for one request.
func ReplyKey(prefix, requestID string) string {
	return prefix + ":reply:" + requestID
}

// HeartbeatKey names the liveness key a worker of the given role refreshes.
func HeartbeatKey(prefix string, role models.WorkerRole) string {
	return prefix + ":heartbeat:" + string(role)
}

// RedisConfig configures the Redis transport.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisTransport backs delegation with Redis lists and keys.
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport connects to Redis and verifies the connection.
func NewRedisTransport(cfg RedisConfig) (*RedisTransport, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis transport: %w", err)
	}

	return &RedisTransport{client: client}, nil
}

// Push appends a payload to a list queue.
func (t *RedisTransport) Push(ctx context.Context, queue string, payload []byte) error {
	if err := t.client.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", queue, err)
	}
	return nil
}

// Pop blocks for up to timeout waiting for one message.
func (t *RedisTransport) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := t.client.BLPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop from %s: %w", queue, err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// SetWithTTL writes a key that expires after ttl.
func (t *RedisTransport) SetWithTTL(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := t.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get reads a key, reporting absence as (nil, nil).
func (t *RedisTransport) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := t.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return res, nil
}

// Close releases the Redis connection.
func (t *RedisTransport) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}

type memEntry struct {
	payload []byte
	expires time.Time
}

// MemoryTransport is an in-process Transport with the same blocking
// semantics, used in tests and single-process deployments.
type MemoryTransport struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	keys   map[string]memEntry
	now    func() time.Time
}

// NewMemoryTransport creates an empty in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		queues: make(map[string]chan []byte),
		keys:   make(map[string]memEntry),
		now:    time.Now,
	}
}

func (t *MemoryTransport) queue(name string) chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[name]
	if !ok {
		q = make(chan []byte, 1024)
		t.queues[name] = q
	}
	return q
}

// Push appends a payload to a queue.
func (t *MemoryTransport) Push(ctx context.Context, queue string, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case t.queue(queue) <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop blocks for up to timeout waiting for one message.
func (t *MemoryTransport) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case payload := <-t.queue(queue):
		return payload, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetWithTTL writes a key that expires after ttl.
func (t *MemoryTransport) SetWithTTL(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	t.mu.Lock()
	t.keys[key] = memEntry{payload: buf, expires: t.now().Add(ttl)}
	t.mu.Unlock()
	return nil
}

// Get reads a key, reporting absence or expiry as (nil, nil).
func (t *MemoryTransport) Get(_ context.Context, key string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.keys[key]
	if !ok {
		return nil, nil
	}
	if !e.expires.IsZero() && t.now().After(e.expires) {
		delete(t.keys, key)
		return nil, nil
	}
	return e.payload, nil
}

// Close is a no-op.
func (t *MemoryTransport) Close() error { return nil }
