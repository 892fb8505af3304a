package adapters

import (
	"context"

	"ocr-job-service/internal/core/ports"
	"ocr-job-service/pkg/cache"

	"github.com/rs/zerolog"
)

// RedisResultCache implements ports.ResultCache as a cache-aside layer in
// front of the Store's result read path. It is never a hard dependency: a
// Redis outage degrades to always-miss rather than failing requests.
type RedisResultCache struct {
	cache  *cache.Cache
	logger zerolog.Logger
}

func NewRedisResultCache(c *cache.Cache, logger zerolog.Logger) ports.ResultCache {
	return &RedisResultCache{cache: c, logger: logger.With().Str("component", "result_cache").Logger()}
}

func (c *RedisResultCache) GetResult(ctx context.Context, jobID string) (string, bool) {
	value, err := c.cache.Get(ctx, "ocrresult:"+jobID)
	if err != nil {
		if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("job_id", jobID).Msg("result cache read failed")
		}
		return "", false
	}
	markdown, ok := value.(string)
	return markdown, ok
}

func (c *RedisResultCache) SetResult(ctx context.Context, jobID, markdown string) error {
	return c.cache.Set(ctx, "ocrresult:"+jobID, markdown)
}

func (c *RedisResultCache) Invalidate(ctx context.Context, jobID string) error {
	return c.cache.Delete(ctx, "ocrresult:"+jobID)
}

// NoopResultCache is used when Redis is unavailable or caching is disabled.
type NoopResultCache struct{}

func (NoopResultCache) GetResult(ctx context.Context, jobID string) (string, bool) { return "", false }
func (NoopResultCache) SetResult(ctx context.Context, jobID, markdown string) error { return nil }
func (NoopResultCache) Invalidate(ctx context.Context, jobID string) error          { return nil }
