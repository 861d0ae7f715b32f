// Package analytics holds the derived, read-only result types for the
// portfolio analytics layer. None of these are persisted entities; each is
// computed on read from current store rows.
package analytics

import (
	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
)

// AssetSummary is one asset's contribution to a portfolio's analytics.
// Value and cost figures are decimal strings; Allocation is a percentage of
// the portfolio's total value (0 when the total is 0).
type AssetSummary struct {
	AssetID       string  `json:"asset_id"`
	TokenAddress  string  `json:"token_address"`
	TokenSymbol   string  `json:"token_symbol"`
	TokenName     string  `json:"token_name"`
	ChainID       int64   `json:"chain_id"`
	Balance       string  `json:"balance"`
	PriceUSD      string  `json:"price_usd"`
	Value         string  `json:"value"`
	Allocation    float64 `json:"allocation"`
	Cost          string  `json:"cost,omitzero"`
	PNL           string  `json:"pnl,omitzero"`
	PNLPercentage float64 `json:"pnl_percentage"`
}

// PortfolioAnalytics is the full derived view of one portfolio.
type PortfolioAnalytics struct {
	PortfolioID        string                  `json:"portfolio_id"`
	Name               string                  `json:"name"`
	TotalValue         string                  `json:"total_value"`
	TotalCost          string                  `json:"total_cost"`
	PNL                string                  `json:"pnl"`
	PNLPercentage      float64                 `json:"pnl_percentage"`
	Assets             []AssetSummary          `json:"assets"`
	TopAssets          []AssetSummary          `json:"top_assets"`
	RecentTransactions []portfolio.Transaction `json:"recent_transactions"`
	DailySnapshots     []portfolio.Snapshot    `json:"daily_snapshots"`
}

// PortfolioBreakdown is one portfolio's share of a user's total value.
type PortfolioBreakdown struct {
	PortfolioID string  `json:"portfolio_id"`
	Name        string  `json:"name"`
	Value       string  `json:"value"`
	Allocation  float64 `json:"allocation"`
}

// ActivitySummary counts a user's transactions over trailing windows.
// MostActiveChain is the chain with the most transactions in the 30d window;
// ties go to the lowest chain ID, 0 means no activity at all.
type ActivitySummary struct {
	Last24Hours     int   `json:"last_24h"`
	Last7Days       int   `json:"last_7d"`
	Last30Days      int   `json:"last_30d"`
	MostActiveChain int64 `json:"most_active_chain"`
}

// UserAnalytics aggregates across all portfolios owned by one user.
type UserAnalytics struct {
	TotalPortfolios    int                  `json:"total_portfolios"`
	TotalAssets        int                  `json:"total_assets"`
	TotalTransactions  int                  `json:"total_transactions"`
	TotalValue         string               `json:"total_value"`
	PortfolioBreakdown []PortfolioBreakdown `json:"portfolio_breakdown"`
	ActivitySummary    ActivitySummary      `json:"activity_summary"`
}

// DailyBucket is one UTC calendar day's transaction count and exact decimal
// volume sum.
type DailyBucket struct {
	Date   string `json:"date"`
	Count  int    `json:"count"`
	Volume string `json:"volume"`
}

// TransactionStats groups a user's transactions over a trailing window.
type TransactionStats struct {
	Days    int                               `json:"days"`
	Total   int                               `json:"total"`
	ByType  map[portfolio.TransactionType]int `json:"by_type"`
	ByChain map[int64]int                     `json:"by_chain"`
	Daily   []DailyBucket                     `json:"daily"`
}

// LeaderboardEntry is one row of the public cross-user ranking. It carries
// username and portfolio name only; no addresses or per-asset detail.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	Username      string `json:"username"`
	PortfolioName string `json:"portfolio_name"`
	TotalValue    string `json:"total_value"`
}
