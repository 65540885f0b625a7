package store

import (
	"context"
	"time"

	"backoffice-svc/circuitbreaker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupKeyPrefix = "webhook:event:"

// RedisDedup is the advisory replay cache in front of Postgres. Provider
// events are retried for days at most, so entries carry a TTL instead of
// living forever. A Redis outage trips the breaker and every check
// degrades to a miss; the processed_events table still catches replays.
type RedisDedup struct {
	client  *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	ttl     time.Duration
	logger  *zap.Logger
}

func NewRedisDedup(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisDedup {
	return &RedisDedup{
		client:  client,
		breaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
		ttl:     ttl,
		logger:  logger,
	}
}

func (d *RedisDedup) Seen(ctx context.Context, eventID string) bool {
	var exists int64
	err := d.breaker.Execute(ctx, func() error {
		var err error
		exists, err = d.client.Exists(ctx, dedupKeyPrefix+eventID).Result()
		return err
	})
	if err != nil {
		if err != circuitbreaker.ErrCircuitOpen {
			d.logger.Warn("Dedup cache lookup failed", zap.String("event_id", eventID), zap.Error(err))
		}
		return false
	}
	return exists > 0
}

func (d *RedisDedup) Mark(ctx context.Context, eventID string) {
	err := d.breaker.Execute(ctx, func() error {
		return d.client.Set(ctx, dedupKeyPrefix+eventID, "1", d.ttl).Err()
	})
	if err != nil && err != circuitbreaker.ErrCircuitOpen {
		d.logger.Warn("Dedup cache write failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
