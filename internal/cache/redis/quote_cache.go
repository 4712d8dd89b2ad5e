package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// QuoteCache implements domain.QuoteCache. Quotes are stored as plain
// strings at "quote:{market}:{request}" and every key of a market is indexed
// in the set "quote-index:{market}" so a trade or odds update can drop them
// at once.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(key string) string {
	return keyPrefix + "quote:" + key
}

func quoteIndexKey(market string) string {
	return keyPrefix + "quote-index:" + market
}

// QuoteKey builds the cache key of one quote request on market.
func QuoteKey(market, request string) string {
	return market + ":" + request
}

// Set stores payload under key for ttl. Keys built by QuoteKey are indexed
// under their market.
func (qc *QuoteCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	pipe := qc.rdb.TxPipeline()
	pipe.Set(ctx, quoteKey(key), payload, ttl)
	if market := marketOf(key); market != "" {
		idx := quoteIndexKey(market)
		pipe.SAdd(ctx, idx, key)
		pipe.Expire(ctx, idx, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// Get returns the cached payload or domain.ErrNotFound.
func (qc *QuoteCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := qc.rdb.Get(ctx, quoteKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	return b, nil
}

// InvalidateMarket drops every cached quote of market.
func (qc *QuoteCache) InvalidateMarket(ctx context.Context, market string) error {
	idx := quoteIndexKey(market)
	keys, err := qc.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("redis: list quotes of %s: %w", market, err)
	}
	del := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		del = append(del, quoteKey(k))
	}
	del = append(del, idx)
	if err := qc.rdb.Del(ctx, del...).Err(); err != nil {
		return fmt.Errorf("redis: invalidate quotes of %s: %w", market, err)
	}
	return nil
}

func marketOf(key string) string {
	market, _, ok := strings.Cut(key, ":")
	if !ok {
		return ""
	}
	return market
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
