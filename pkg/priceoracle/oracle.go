// Package priceoracle provides token price lookups used by analytics.
package priceoracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a USD price for a token on a chain. Known is false when the
// oracle has no price for the token; callers treat that as a zero value.
type Quote struct {
	TokenAddress string
	ChainID      int64
	PriceUSD     decimal.Decimal
	Known        bool
	AsOf         time.Time
}

// Source answers price lookups.
type Source interface {
	Price(ctx context.Context, tokenAddress string, chainID int64) (*Quote, error)
}
