package similarity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cached decorates a Provider with a Redis result cache. Similarity is
// symmetric, so the key is order-independent; cache failures degrade to the
// inner provider and are only logged.
type Cached struct {
	inner  Provider
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCached wraps inner with a Redis cache. A nil client disables caching.
func NewCached(inner Provider, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "similarity_cache").Logger(),
	}
}

// Compare implements Provider.
func (c *Cached) Compare(ctx context.Context, a, b string) (float64, error) {
	if c.client == nil {
		return c.inner.Compare(ctx, a, b)
	}

	key := cacheKey(a, b)
	if cached, err := c.client.Get(ctx, key).Result(); err == nil {
		if score, parseErr := strconv.ParseFloat(cached, 64); parseErr == nil {
			c.logger.Debug().Str("key", key).Msg("similarity cache hit")
			return score, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn().Err(err).Msg("failed to read similarity cache")
	}

	score, err := c.inner.Compare(ctx, a, b)
	if err != nil {
		return 0, err
	}

	payload := strconv.FormatFloat(score, 'f', -1, 64)
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to store similarity cache")
	}
	return score, nil
}

func cacheKey(a, b string) string {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	first, second := hex.EncodeToString(ha[:8]), hex.EncodeToString(hb[:8])
	if second < first {
		first, second = second, first
	}
	return fmt.Sprintf("similarity:%s:%s", first, second)
}
