package cache

import (
	"context"
	"time"

	"github.com/kiranshivaraju/voicepipe/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetRecordingStatus(ctx context.Context, recordingID string, status models.JobStatus, ttl time.Duration) error
	GetRecordingStatus(ctx context.Context, recordingID string) (models.JobStatus, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) SetRecordingStatus(ctx context.Context, recordingID string, status models.JobStatus, ttl time.Duration) error {
	return c.client.Set(ctx, RecordingStatusKey(recordingID), string(status), ttl).Err()
}

func (c *RedisCache) GetRecordingStatus(ctx context.Context, recordingID string) (models.JobStatus, bool, error) {
	val, err := c.client.Get(ctx, RecordingStatusKey(recordingID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return models.JobStatus(val), true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
