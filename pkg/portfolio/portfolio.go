// Package portfolio holds the domain model for portfolios, assets,
// transactions and watchlist entries.
package portfolio

import "time"

// User represents the domain model for a provisioned user. Identity comes
// from the authentication layer; the row exists so public surfaces (the
// leaderboard) can show a username without exposing anything else.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Portfolio is a named collection of assets owned by exactly one user.
// Every user has exactly one default portfolio at any time.
type Portfolio struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitzero"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PortfolioWithAssets bundles a portfolio with its current asset rows.
type PortfolioWithAssets struct {
	Portfolio
	Assets []Asset `json:"assets"`
}

// PortfolioWithOwner carries the owner's username alongside the portfolio.
// Used by the leaderboard, which is the only cross-user read path.
type PortfolioWithOwner struct {
	Portfolio
	Username string `json:"username"`
}

// Asset is a token position inside a portfolio. Balance and AverageCost are
// decimal strings; wei-scale quantities overflow float64 so they are never
// carried as native floats.
type Asset struct {
	ID            string    `json:"id"`
	PortfolioID   string    `json:"portfolio_id"`
	TokenAddress  string    `json:"token_address"`
	TokenSymbol   string    `json:"token_symbol"`
	TokenName     string    `json:"token_name"`
	TokenDecimals int       `json:"token_decimals"`
	ChainID       int64     `json:"chain_id"`
	Balance       string    `json:"balance"`
	AverageCost   string    `json:"average_cost,omitzero"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TransactionType enumerates the recognized transaction kinds.
type TransactionType string

const (
	TxTransfer TransactionType = "transfer"
	TxMint     TransactionType = "mint"
	TxBurn     TransactionType = "burn"
	TxSwap     TransactionType = "swap"
	TxStake    TransactionType = "stake"
	TxUnstake  TransactionType = "unstake"
	TxClaim    TransactionType = "claim"
)

// Valid reports whether t is one of the recognized transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TxTransfer, TxMint, TxBurn, TxSwap, TxStake, TxUnstake, TxClaim:
		return true
	}
	return false
}

// Transaction is an immutable activity record. Rows are append-only and never
// mutated after creation.
type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	PortfolioID  string          `json:"portfolio_id"`
	TxHash       string          `json:"tx_hash"`
	Type         TransactionType `json:"type"`
	TokenAddress string          `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	Amount       string          `json:"amount"`
	FromAddress  string          `json:"from_address"`
	ToAddress    string          `json:"to_address"`
	ChainID      int64           `json:"chain_id"`
	BlockNumber  int64           `json:"block_number"`
	GasUsed      string          `json:"gas_used,omitzero"`
	GasPrice     string          `json:"gas_price,omitzero"`
	Timestamp    time.Time       `json:"timestamp"`
	CreatedAt    time.Time       `json:"created_at"`
}

// WatchlistItem is a token a user tracks without holding it in a portfolio.
type WatchlistItem struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	TokenAddress   string    `json:"token_address"`
	TokenSymbol    string    `json:"token_symbol"`
	TokenName      string    `json:"token_name"`
	ChainID        int64     `json:"chain_id"`
	PriceAlertHigh string    `json:"price_alert_high,omitzero"`
	PriceAlertLow  string    `json:"price_alert_low,omitzero"`
	Notes          string    `json:"notes,omitzero"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot is a persisted point-in-time aggregate of a portfolio's value,
// one row per (portfolio, UTC day). Change and ChangePercentage are computed
// once at write time relative to the most recent prior snapshot.
type Snapshot struct {
	PortfolioID      string    `json:"portfolio_id"`
	Date             time.Time `json:"date"`
	TotalValue       string    `json:"total_value"`
	Change           string    `json:"change"`
	ChangePercentage float64   `json:"change_percentage"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreatePortfolioInput carries the caller-supplied fields for a new portfolio.
type CreatePortfolioInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitzero" validate:"max=500"`
}

// UpdatePortfolioInput carries the mutable portfolio fields. Nil means
// "leave unchanged".
type UpdatePortfolioInput struct {
	Name        *string `json:"name,omitzero" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitzero" validate:"omitempty,max=500"`
}

// AddAssetInput carries the caller-supplied fields for a new asset.
type AddAssetInput struct {
	TokenAddress  string `json:"token_address" validate:"required"`
	TokenSymbol   string `json:"token_symbol" validate:"required,max=20"`
	TokenName     string `json:"token_name" validate:"required,max=100"`
	TokenDecimals int    `json:"token_decimals" validate:"gte=0,lte=36"`
	ChainID       int64  `json:"chain_id" validate:"gt=0"`
	Balance       string `json:"balance" validate:"required"`
	AverageCost   string `json:"average_cost,omitzero"`
}

// RecordTransactionInput carries the caller-supplied fields for a new
// transaction record.
type RecordTransactionInput struct {
	PortfolioID  string    `json:"portfolio_id" validate:"required"`
	TxHash       string    `json:"tx_hash" validate:"required,max=66"`
	Type         string    `json:"type" validate:"required"`
	TokenAddress string    `json:"token_address" validate:"required"`
	TokenSymbol  string    `json:"token_symbol" validate:"required,max=20"`
	Amount       string    `json:"amount" validate:"required"`
	FromAddress  string    `json:"from_address" validate:"required"`
	ToAddress    string    `json:"to_address" validate:"required"`
	ChainID      int64     `json:"chain_id" validate:"gt=0"`
	BlockNumber  int64     `json:"block_number" validate:"gte=0"`
	GasUsed      string    `json:"gas_used,omitzero"`
	GasPrice     string    `json:"gas_price,omitzero"`
	Timestamp    time.Time `json:"timestamp"`
}

// AddWatchlistItemInput carries the caller-supplied fields for a new
// watchlist entry.
type AddWatchlistItemInput struct {
	TokenAddress   string `json:"token_address" validate:"required"`
	TokenSymbol    string `json:"token_symbol" validate:"required,max=20"`
	TokenName      string `json:"token_name" validate:"required,max=100"`
	ChainID        int64  `json:"chain_id" validate:"gt=0"`
	PriceAlertHigh string `json:"price_alert_high,omitzero"`
	PriceAlertLow  string `json:"price_alert_low,omitzero"`
	Notes          string `json:"notes,omitzero" validate:"max=1000"`
}

// UpdateWatchlistItemInput carries the mutable watchlist fields. Nil means
// "leave unchanged".
type UpdateWatchlistItemInput struct {
	PriceAlertHigh *string `json:"price_alert_high,omitzero"`
	PriceAlertLow  *string `json:"price_alert_low,omitzero"`
	Notes          *string `json:"notes,omitzero" validate:"omitempty,max=1000"`
}
