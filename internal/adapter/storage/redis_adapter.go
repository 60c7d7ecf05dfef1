package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	trackingKeyPrefix  = "tracking:"
	shortfallKeyPrefix = "shortfall:item:"
)

// RedisAdapter caches tracking snapshots for the public lookup endpoint and
// accumulates per-item clamp shortfall counters.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) GetTrackingSnapshot(ctx context.Context, trackingID string) ([]byte, error) {
	data, err := r.client.Get(ctx, trackingKeyPrefix+trackingID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisAdapter) SetTrackingSnapshot(ctx context.Context, trackingID string, data []byte, ttl time.Duration) error {
	return r.client.Set(ctx, trackingKeyPrefix+trackingID, data, ttl).Err()
}

func (r *RedisAdapter) InvalidateTracking(ctx context.Context, trackingID string) error {
	return r.client.Del(ctx, trackingKeyPrefix+trackingID).Err()
}

func (r *RedisAdapter) AddClampShortfall(ctx context.Context, itemID int64, qty int) error {
	key := fmt.Sprintf("%s%d", shortfallKeyPrefix, itemID)
	return r.client.IncrBy(ctx, key, int64(qty)).Err()
}

// ClampShortfall reads the accumulated shortfall counter for an item; zero
// when none was ever recorded.
func (r *RedisAdapter) ClampShortfall(ctx context.Context, itemID int64) (int64, error) {
	key := fmt.Sprintf("%s%d", shortfallKeyPrefix, itemID)
	n, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
