package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	GetReviews(ctx context.Context, appID string, tier int) ([]models.Review, bool, error)
	SetReviews(ctx context.Context, appID string, tier int, reviews []models.Review) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// reviewEntry is the stored envelope for a (app, tier) sample set. CachedAt
// lets readers reject stale entries even if the Redis TTL has not fired yet.
type reviewEntry struct {
	CachedAt time.Time       `json:"cached_at"`
	Reviews  []models.Review `json:"reviews"`
}

// Expired reports whether a review entry cached at cachedAt must be treated
// as absent at time now. Readers apply this regardless of background purge.
func Expired(cachedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(cachedAt) >= ttl
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client    *redis.Client
	reviewTTL time.Duration
	now       func() time.Time
}

// NewRedisCache creates a new RedisCache from a Redis URL. reviewTTL bounds
// how long cached review samples stay valid.
func NewRedisCache(redisURL string, reviewTTL time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{
		client:    redis.NewClient(opts),
		reviewTTL: reviewTTL,
		now:       time.Now,
	}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// GetReviews returns the cached sample set for (appID, tier), treating
// entries older than the review TTL as misses and lazily purging them.
func (c *RedisCache) GetReviews(ctx context.Context, appID string, tier int) ([]models.Review, bool, error) {
	raw, found, err := c.Get(ctx, ReviewsKey(appID, tier))
	if err != nil || !found {
		return nil, false, err
	}

	var entry reviewEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cached reviews: %w", err)
	}

	if Expired(entry.CachedAt, c.now(), c.reviewTTL) {
		_ = c.Delete(ctx, ReviewsKey(appID, tier))
		return nil, false, nil
	}

	return entry.Reviews, true, nil
}

// SetReviews upserts the sample set for (appID, tier). Last writer wins;
// entries are idempotent snapshots, so overwrite races are benign.
func (c *RedisCache) SetReviews(ctx context.Context, appID string, tier int, reviews []models.Review) error {
	entry := reviewEntry{
		CachedAt: c.now().UTC(),
		Reviews:  reviews,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached reviews: %w", err)
	}
	return c.Set(ctx, ReviewsKey(appID, tier), raw, c.reviewTTL)
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
