package productdata

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pantrylens/backend/internal/domain"
)

// Cached memoises a source's results per key. Errors are never cached.
type Cached struct {
	source domain.ProductDataSource
	cache  domain.CacheRepository
	ttl    time.Duration
	logger *zap.Logger
}

// NewCached wraps source with cache
func NewCached(source domain.ProductDataSource, cache domain.CacheRepository, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{source: source, cache: cache, ttl: ttl, logger: logger.Named("productdata.cache")}
}

func (c *Cached) Info() domain.SourceInfo {
	return c.source.Info()
}

func (c *Cached) GetData(ctx context.Context, key domain.ProductKey) (domain.ProductData, error) {
	cacheKey := "productdata:" + c.source.Info().Name + ":" + key.String()

	cached, err := c.cache.Get(ctx, cacheKey)
	if err == nil {
		if data, ok := cached.(domain.ProductData); ok {
			c.logger.Debug("cache hit", zap.Stringer("key", key))
			return data, nil
		}
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		c.logger.Warn("cache read failed", zap.String("cache_key", cacheKey), zap.Error(err))
	}

	data, err := c.source.GetData(ctx, key)
	if err != nil {
		return domain.ProductData{}, err
	}

	if err := c.cache.Set(ctx, cacheKey, data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("cache_key", cacheKey), zap.Error(err))
	}
	return data, nil
}
