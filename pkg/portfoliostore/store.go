package portfoliostore

import (
	"context"
	"errors"
	"time"

	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
)

// Not-found sentinels. Lookups scoped to a user return the same sentinel for
// "row does not exist" and "row belongs to someone else", so callers cannot
// distinguish the two cases.
var (
	ErrPortfolioNotFound     = errors.New("portfolio not found")
	ErrAssetNotFound         = errors.New("asset not found")
	ErrWatchlistItemNotFound = errors.New("watchlist item not found")
	ErrUserNotFound          = errors.New("user not found")
)

// UserStore persists the minimal user rows provisioned from auth claims.
type UserStore interface {
	EnsureUser(ctx context.Context, id, username string) error
	GetUser(ctx context.Context, id string) (*portfolio.User, error)
}

// PortfolioStore defines portfolio row persistence. All single-row reads and
// writes are ownership-scoped by userID.
type PortfolioStore interface {
	CreatePortfolio(ctx context.Context, p *portfolio.Portfolio) error
	GetPortfolio(ctx context.Context, id, userID string) (*portfolio.Portfolio, error)
	// GetPortfolioByID fetches without ownership scoping. Background workers
	// only; HTTP paths go through GetPortfolio.
	GetPortfolioByID(ctx context.Context, id string) (*portfolio.Portfolio, error)
	ListPortfolios(ctx context.Context, userID string) ([]portfolio.Portfolio, error)
	UpdatePortfolio(ctx context.Context, id, userID string, in portfolio.UpdatePortfolioInput) (*portfolio.Portfolio, error)
	DeletePortfolio(ctx context.Context, id, userID string) error
	// SetDefaultPortfolio clears the user's previous default and marks the
	// given portfolio inside a single transaction, so there is never a window
	// with zero or two defaults.
	SetDefaultPortfolio(ctx context.Context, id, userID string) error
	CountPortfolios(ctx context.Context, userID string) (int, error)
	// ListAllPortfolios returns every portfolio in the system joined with its
	// owner's username. Leaderboard only; deliberately not ownership-scoped.
	ListAllPortfolios(ctx context.Context) ([]portfolio.PortfolioWithOwner, error)
}

// AssetStore defines asset row persistence. Ownership is verified
// transitively through the asset's portfolio.
type AssetStore interface {
	CreateAsset(ctx context.Context, a *portfolio.Asset) error
	GetAsset(ctx context.Context, id, userID string) (*portfolio.Asset, error)
	ListAssets(ctx context.Context, portfolioID string) ([]portfolio.Asset, error)
	UpdateAssetBalance(ctx context.Context, id, userID, balance string) (*portfolio.Asset, error)
	DeleteAsset(ctx context.Context, id, userID string) error
	CountAssetsByUser(ctx context.Context, userID string) (int, error)
}

// TransactionStore defines the append-only transaction log.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *portfolio.Transaction) error
	ListTransactions(ctx context.Context, opts ...TxQueryOption) ([]portfolio.Transaction, error)
	CountTransactions(ctx context.Context, userID string) (int, error)
	CountTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// WatchlistStore defines watchlist persistence, scoped directly to the user.
type WatchlistStore interface {
	CreateWatchlistItem(ctx context.Context, w *portfolio.WatchlistItem) error
	ListWatchlist(ctx context.Context, userID string) ([]portfolio.WatchlistItem, error)
	UpdateWatchlistItem(ctx context.Context, id, userID string, in portfolio.UpdateWatchlistItemInput) (*portfolio.WatchlistItem, error)
	DeleteWatchlistItem(ctx context.Context, id, userID string) error
}

// SnapshotStore defines daily snapshot persistence.
type SnapshotStore interface {
	// UpsertSnapshot writes the snapshot row keyed by (portfolio, UTC day),
	// replacing any existing row for the same day.
	UpsertSnapshot(ctx context.Context, s *portfolio.Snapshot) error
	// ListSnapshots returns a portfolio's snapshots ordered by date ascending.
	ListSnapshots(ctx context.Context, portfolioID string) ([]portfolio.Snapshot, error)
	// LatestSnapshotBefore returns the most recent snapshot strictly before
	// the given day, or (nil, nil) when none exists.
	LatestSnapshotBefore(ctx context.Context, portfolioID string, day time.Time) (*portfolio.Snapshot, error)
}

// Store is the full persistence surface for the API server.
type Store interface {
	UserStore
	PortfolioStore
	AssetStore
	TransactionStore
	WatchlistStore
	SnapshotStore
}

// TxQueryOptions defines filters for transaction listing.
type TxQueryOptions struct {
	UserID      *string
	PortfolioID *string
	Since       *time.Time
	Limit       int
	Offset      int
}

// TxQueryOption is a functional option for querying transactions.
type TxQueryOption func(*TxQueryOptions)

// WithUser restricts transactions to one user.
func WithUser(userID string) TxQueryOption {
	return func(opts *TxQueryOptions) {
		opts.UserID = &userID
	}
}

// WithPortfolio restricts transactions to one portfolio.
func WithPortfolio(portfolioID string) TxQueryOption {
	return func(opts *TxQueryOptions) {
		opts.PortfolioID = &portfolioID
	}
}

// WithSince restricts transactions to those at or after the given instant.
func WithSince(since time.Time) TxQueryOption {
	return func(opts *TxQueryOptions) {
		opts.Since = &since
	}
}

// WithLimit caps the number of returned rows.
func WithLimit(limit int) TxQueryOption {
	return func(opts *TxQueryOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n rows, for paging.
func WithOffset(offset int) TxQueryOption {
	return func(opts *TxQueryOptions) {
		opts.Offset = offset
	}
}
