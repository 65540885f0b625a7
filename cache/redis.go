package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backoffice-svc/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitRedis(cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

func GetDelivery(ctx context.Context, rdb *redis.Client, id string) ([]byte, error) {
	key := fmt.Sprintf("delivery:%s", id)
	return rdb.Get(ctx, key).Bytes()
}

func SetDelivery(ctx context.Context, rdb *redis.Client, id string, delivery interface{}, ttl time.Duration) error {
	key := fmt.Sprintf("delivery:%s", id)
	data, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, data, ttl).Err()
}

func DeleteDelivery(ctx context.Context, rdb *redis.Client, id string) error {
	key := fmt.Sprintf("delivery:%s", id)
	return rdb.Del(ctx, key).Err()
}
