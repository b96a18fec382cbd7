package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/evetabi/betengine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// RedisQuoteCache shares price quotes between server and resolver processes
// so they do not each hit the exchanges.
type RedisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisQuoteCache creates a cache whose entries expire after ttl.
func NewRedisQuoteCache(c *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisQuoteCache {
	return &RedisQuoteCache{client: c, ttl: ttl, logger: logger.With("component", "redis_quote_cache")}
}

func quoteKey(symbol string) string { return "price:quote:" + symbol }

// GetQuote returns a cached quote.  Redis errors count as a miss.
func (r *RedisQuoteCache) GetQuote(ctx context.Context, symbol string) (domain.PriceQuote, bool) {
	raw, err := r.client.Get(ctx, quoteKey(symbol)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis get failed", "symbol", symbol, "err", err)
		}
		return domain.PriceQuote{}, false
	}
	var q domain.PriceQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		r.logger.Warn("redis quote decode failed", "symbol", symbol, "err", err)
		return domain.PriceQuote{}, false
	}
	return q, true
}

// SetQuote stores a quote with the configured TTL.  Failures are logged only.
func (r *RedisQuoteCache) SetQuote(ctx context.Context, q domain.PriceQuote) {
	b, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, quoteKey(q.Symbol), b, r.ttl).Err(); err != nil {
		r.logger.Warn("redis set failed", "symbol", q.Symbol, "err", err)
	}
}
