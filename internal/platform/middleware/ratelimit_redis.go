package middleware

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "healthos:ratelimit:"

// RedisStore enforces a fixed one-second window shared by every server
// instance. A key may make max(burst, ceil(rps)) requests per window.
type RedisStore struct {
	rdb   *redis.Client
	limit int64
	now   func() time.Time
}

func NewRedisStore(rdb *redis.Client, cfg RateLimitConfig) *RedisStore {
	limit := int64(math.Max(float64(cfg.BurstSize), math.Ceil(cfg.RequestsPerSecond)))
	if limit < 1 {
		limit = 1
	}
	return &RedisStore{rdb: rdb, limit: limit, now: time.Now}
}

// NewRedisClient parses url and pings the server before returning.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := s.now()
	window := now.Unix()
	redisKey := fmt.Sprintf("%s%s:%d", redisKeyPrefix, key, window)

	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, 2*time.Second)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr: %w", err)
	}

	if incr.Val() > s.limit {
		return false, time.Unix(window+1, 0).Sub(now), nil
	}
	return true, 0, nil
}
