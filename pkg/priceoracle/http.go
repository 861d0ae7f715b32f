package priceoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/creasty/defaults"
	"github.com/shopspring/decimal"

	"github.com/tokenfolio/portfolio-api/internal/metrics"
)

// Options configures the HTTP price source.
type Options struct {
	RequestTimeout time.Duration `default:"10s"`
	// MaxRetries is the number of additional attempts after a failed call.
	MaxRetries      uint          `default:"1"`
	InitialInterval time.Duration `default:"200ms"`
}

// HTTPSource fetches prices from the oracle's REST endpoint.
type HTTPSource struct {
	baseURL string
	opts    Options
	client  *http.Client
}

// NewHTTPSource creates a price source against the given oracle base URL.
func NewHTTPSource(baseURL string, opts Options) (*HTTPSource, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("oracle base URL is required")
	}
	if err := defaults.Set(&opts); err != nil {
		return nil, fmt.Errorf("failed to apply option defaults: %w", err)
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		client:  &http.Client{Timeout: opts.RequestTimeout},
	}, nil
}

type priceResponse struct {
	TokenAddress string `json:"token_address"`
	ChainID      int64  `json:"chain_id"`
	PriceUSD     string `json:"price_usd"`
	Timestamp    int64  `json:"timestamp"`
}

// Price fetches the USD price of a token. A 404 from the oracle means the
// token is unpriced and yields an unknown quote, not an error. Transient
// failures are retried once with backoff before giving up.
func (s *HTTPSource) Price(ctx context.Context, tokenAddress string, chainID int64) (*Quote, error) {
	start := time.Now()
	defer func() {
		metrics.PriceLookupDuration.Observe(time.Since(start).Seconds())
	}()

	endpoint := fmt.Sprintf("%s/v1/price?token=%s&chain_id=%d",
		s.baseURL, url.QueryEscape(strings.ToLower(tokenAddress)), chainID)

	var quote *Quote
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			quote = &Quote{
				TokenAddress: strings.ToLower(tokenAddress),
				ChainID:      chainID,
				Known:        false,
				AsOf:         time.Now().UTC(),
			}
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("oracle returned status %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("oracle returned status %d", resp.StatusCode)
		}

		var body priceResponse
		if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("failed to decode oracle response: %w", err)
		}

		price, err := decimal.NewFromString(body.PriceUSD)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("oracle returned invalid price %q: %w", body.PriceUSD, err))
		}

		asOf := time.Now().UTC()
		if body.Timestamp > 0 {
			asOf = time.Unix(body.Timestamp, 0).UTC()
		}
		quote = &Quote{
			TokenAddress: strings.ToLower(tokenAddress),
			ChainID:      chainID,
			PriceUSD:     price,
			Known:        true,
			AsOf:         asOf,
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.InitialInterval
	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.opts.MaxRetries)), ctx))
	if err != nil {
		metrics.PriceLookupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("price lookup for %s on chain %d failed: %w", tokenAddress, chainID, err)
	}
	if quote.Known {
		metrics.PriceLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.PriceLookupsTotal.WithLabelValues("unknown").Inc()
	}
	return quote, nil
}
