package priceoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CachedSource wraps a Source with a redis price cache. Cache failures
// degrade to a direct oracle call instead of failing the lookup.
type CachedSource struct {
	next   Source
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSource creates a caching decorator around next.
func NewCachedSource(next Source, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedSource{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

type cachedQuote struct {
	PriceUSD string `json:"price_usd"`
	Known    bool   `json:"known"`
	AsOf     int64  `json:"as_of"`
}

func cacheKey(tokenAddress string, chainID int64) string {
	return fmt.Sprintf("price:%d:%s", chainID, strings.ToLower(tokenAddress))
}

// Price returns the cached quote when present, otherwise asks the wrapped
// source and stores the result. Unknown quotes are cached too so a missing
// token does not hammer the oracle.
func (s *CachedSource) Price(ctx context.Context, tokenAddress string, chainID int64) (*Quote, error) {
	key := cacheKey(tokenAddress, chainID)

	raw, err := s.client.Get(ctx, key).Result()
	if err == nil {
		var cached cachedQuote
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			price, decErr := decimal.NewFromString(cached.PriceUSD)
			if decErr == nil {
				return &Quote{
					TokenAddress: strings.ToLower(tokenAddress),
					ChainID:      chainID,
					PriceUSD:     price,
					Known:        cached.Known,
					AsOf:         time.Unix(cached.AsOf, 0).UTC(),
				}, nil
			}
		}
		s.logger.Warn("Discarding malformed cached quote", zap.String("key", key))
	} else if err != redis.Nil {
		s.logger.Warn("Price cache read failed", zap.String("key", key), zap.Error(err))
	}

	quote, err := s.next.Price(ctx, tokenAddress, chainID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cachedQuote{
		PriceUSD: quote.PriceUSD.String(),
		Known:    quote.Known,
		AsOf:     quote.AsOf.Unix(),
	})
	if err == nil {
		if setErr := s.client.Set(ctx, key, payload, s.ttl).Err(); setErr != nil {
			s.logger.Warn("Price cache write failed", zap.String("key", key), zap.Error(setErr))
		}
	}

	return quote, nil
}
