package similarity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalCompare(t *testing.T) {
	score, err := Local{}.Compare(context.Background(), "The density is mass over volume", "the density is mass over volume")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	score, err = Local{}.Compare(context.Background(), "completely different", "answer text")
	require.NoError(t, err)
	assert.Less(t, score, 0.5)
}

func TestParseScore(t *testing.T) {
	score, err := parseScore(" 0.87\n")
	require.NoError(t, err)
	assert.Equal(t, 0.87, score)

	score, err = parseScore("1.4")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	_, err = parseScore("very similar")
	assert.Error(t, err)
}

func TestCacheKeySymmetric(t *testing.T) {
	assert.Equal(t, cacheKey("alpha", "beta"), cacheKey("beta", "alpha"))
	assert.NotEqual(t, cacheKey("alpha", "beta"), cacheKey("alpha", "gamma"))
}

type countingProvider struct {
	calls int
	score float64
	err   error
}

func (p *countingProvider) Compare(context.Context, string, string) (float64, error) {
	p.calls++
	return p.score, p.err
}

func TestCachedCompare(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	inner := &countingProvider{score: 0.75}
	cached := NewCached(inner, client, time.Minute, zerolog.Nop())

	score, err := cached.Compare(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 0.75, score)
	assert.Equal(t, 1, inner.calls)

	// Second lookup, including the swapped argument order, hits the cache.
	score, err = cached.Compare(context.Background(), "b", "a")
	require.NoError(t, err)
	assert.Equal(t, 0.75, score)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedCompareDoesNotStoreFailures(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	inner := &countingProvider{err: errors.New("model unavailable")}
	cached := NewCached(inner, client, time.Minute, zerolog.Nop())

	_, err := cached.Compare(context.Background(), "a", "b")
	require.Error(t, err)

	inner.err = nil
	inner.score = 0.5
	score, err := cached.Compare(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 0.5, score)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedCompareNilClientPassesThrough(t *testing.T) {
	inner := &countingProvider{score: 0.9}
	cached := NewCached(inner, nil, time.Minute, zerolog.Nop())

	score, err := cached.Compare(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 0.9, score)
}
