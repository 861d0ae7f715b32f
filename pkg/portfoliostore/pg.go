package portfoliostore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the portfolio store.
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

// EnsureUser inserts the user row or refreshes its username if it already
// exists. Called by the auth middleware on every authenticated request.
func (s *pgStore) EnsureUser(ctx context.Context, id, username string) error {
	dao := &UserDao{ID: id, Username: username}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

func (s *pgStore) GetUser(ctx context.Context, id string) (*portfolio.User, error) {
	dao := new(UserDao)
	err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return toUser(dao), nil
}

func (s *pgStore) CreatePortfolio(ctx context.Context, p *portfolio.Portfolio) error {
	_, err := s.db.NewInsert().
		Model(toPortfolioDao(p)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

func (s *pgStore) GetPortfolio(ctx context.Context, id, userID string) (*portfolio.Portfolio, error) {
	dao := new(PortfolioDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return toPortfolio(dao), nil
}

func (s *pgStore) GetPortfolioByID(ctx context.Context, id string) (*portfolio.Portfolio, error) {
	dao := new(PortfolioDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return toPortfolio(dao), nil
}

func (s *pgStore) ListPortfolios(ctx context.Context, userID string) ([]portfolio.Portfolio, error) {
	var daos []PortfolioDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	out := make([]portfolio.Portfolio, len(daos))
	for i := range daos {
		out[i] = *toPortfolio(&daos[i])
	}
	return out, nil
}

func (s *pgStore) UpdatePortfolio(ctx context.Context, id, userID string, in portfolio.UpdatePortfolioInput) (*portfolio.Portfolio, error) {
	q := s.db.NewUpdate().
		Model((*PortfolioDao)(nil)).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("user_id = ?", userID)

	if in.Name != nil {
		q = q.Set("name = ?", *in.Name)
	}
	if in.Description != nil {
		q = q.Set("description = ?", *in.Description)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to update portfolio: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrPortfolioNotFound
	}
	return s.GetPortfolio(ctx, id, userID)
}

func (s *pgStore) DeletePortfolio(ctx context.Context, id, userID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*PortfolioDao)(nil)).
			Where("id = ?", id).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete portfolio: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrPortfolioNotFound
		}

		// Cascade to dependents of the deleted portfolio.
		if _, err = tx.NewDelete().
			Model((*AssetDao)(nil)).
			Where("portfolio_id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete portfolio assets: %w", err)
		}
		if _, err = tx.NewDelete().
			Model((*SnapshotDao)(nil)).
			Where("portfolio_id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete portfolio snapshots: %w", err)
		}
		return nil
	})
}

// SetDefaultPortfolio flips the default flag inside one transaction:
// verify ownership, clear the old default, set the new one.
func (s *pgStore) SetDefaultPortfolio(ctx context.Context, id, userID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*PortfolioDao)(nil)).
			Where("id = ?", id).
			Where("user_id = ?", userID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check portfolio: %w", err)
		}
		if !exists {
			return ErrPortfolioNotFound
		}

		if _, err = tx.NewUpdate().
			Model((*PortfolioDao)(nil)).
			Set("is_default = FALSE").
			Set("updated_at = NOW()").
			Where("user_id = ?", userID).
			Where("is_default = TRUE").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear previous default: %w", err)
		}

		if _, err = tx.NewUpdate().
			Model((*PortfolioDao)(nil)).
			Set("is_default = TRUE").
			Set("updated_at = NOW()").
			Where("id = ?", id).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to set default portfolio: %w", err)
		}
		return nil
	})
}

func (s *pgStore) CountPortfolios(ctx context.Context, userID string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*PortfolioDao)(nil)).
		Where("user_id = ?", userID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count portfolios: %w", err)
	}
	return count, nil
}

func (s *pgStore) ListAllPortfolios(ctx context.Context) ([]portfolio.PortfolioWithOwner, error) {
	var rows []struct {
		PortfolioDao `bun:",extend"`
		Username     string `bun:"username,scanonly"`
	}
	err := s.db.NewSelect().
		Model(&rows).
		ColumnExpr("p.*").
		ColumnExpr("u.username AS username").
		Join("JOIN users AS u ON u.id = p.user_id").
		Order("p.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list all portfolios: %w", err)
	}
	out := make([]portfolio.PortfolioWithOwner, len(rows))
	for i := range rows {
		out[i] = portfolio.PortfolioWithOwner{
			Portfolio: *toPortfolio(&rows[i].PortfolioDao),
			Username:  rows[i].Username,
		}
	}
	return out, nil
}

func (s *pgStore) CreateAsset(ctx context.Context, a *portfolio.Asset) error {
	_, err := s.db.NewInsert().
		Model(toAssetDao(a)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	return nil
}

func (s *pgStore) GetAsset(ctx context.Context, id, userID string) (*portfolio.Asset, error) {
	dao := new(AssetDao)
	err := s.db.NewSelect().
		Model(dao).
		Join("JOIN portfolios AS p ON p.id = a.portfolio_id").
		Where("a.id = ?", id).
		Where("p.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return toAsset(dao), nil
}

func (s *pgStore) ListAssets(ctx context.Context, portfolioID string) ([]portfolio.Asset, error) {
	var daos []AssetDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("portfolio_id = ?", portfolioID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	out := make([]portfolio.Asset, len(daos))
	for i := range daos {
		out[i] = *toAsset(&daos[i])
	}
	return out, nil
}

func (s *pgStore) UpdateAssetBalance(ctx context.Context, id, userID, balance string) (*portfolio.Asset, error) {
	res, err := s.db.NewUpdate().
		Model((*AssetDao)(nil)).
		TableExpr("portfolios AS p").
		Set("balance = ?::DECIMAL", balance).
		Set("updated_at = NOW()").
		Where("a.id = ?", id).
		Where("p.id = a.portfolio_id").
		Where("p.user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to update asset balance: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrAssetNotFound
	}
	return s.GetAsset(ctx, id, userID)
}

func (s *pgStore) DeleteAsset(ctx context.Context, id, userID string) error {
	res, err := s.db.NewDelete().
		Model((*AssetDao)(nil)).
		Where("id = ?", id).
		Where("portfolio_id IN (SELECT id FROM portfolios WHERE user_id = ?)", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func (s *pgStore) CountAssetsByUser(ctx context.Context, userID string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*AssetDao)(nil)).
		Join("JOIN portfolios AS p ON p.id = a.portfolio_id").
		Where("p.user_id = ?", userID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return count, nil
}

func (s *pgStore) CreateTransaction(ctx context.Context, tx *portfolio.Transaction) error {
	_, err := s.db.NewInsert().
		Model(toTransactionDao(tx)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (s *pgStore) ListTransactions(ctx context.Context, opts ...TxQueryOption) ([]portfolio.Transaction, error) {
	options := &TxQueryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var daos []TransactionDao
	q := s.db.NewSelect().Model(&daos)

	if options.UserID != nil {
		q = q.Where("user_id = ?", *options.UserID)
	}
	if options.PortfolioID != nil {
		q = q.Where("portfolio_id = ?", *options.PortfolioID)
	}
	if options.Since != nil {
		q = q.Where("ts >= ?", *options.Since)
	}
	q = q.Order("ts DESC")
	if options.Limit > 0 {
		q = q.Limit(options.Limit)
	}
	if options.Offset > 0 {
		q = q.Offset(options.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	out := make([]portfolio.Transaction, len(daos))
	for i := range daos {
		out[i] = *toTransaction(&daos[i])
	}
	return out, nil
}

func (s *pgStore) CountTransactions(ctx context.Context, userID string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*TransactionDao)(nil)).
		Where("user_id = ?", userID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (s *pgStore) CountTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	count, err := s.db.NewSelect().
		Model((*TransactionDao)(nil)).
		Where("user_id = ?", userID).
		Where("ts >= ?", since).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions since %s: %w", since.Format(time.RFC3339), err)
	}
	return count, nil
}

func (s *pgStore) CreateWatchlistItem(ctx context.Context, w *portfolio.WatchlistItem) error {
	_, err := s.db.NewInsert().
		Model(toWatchlistItemDao(w)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create watchlist item: %w", err)
	}
	return nil
}

func (s *pgStore) ListWatchlist(ctx context.Context, userID string) ([]portfolio.WatchlistItem, error) {
	var daos []WatchlistItemDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	out := make([]portfolio.WatchlistItem, len(daos))
	for i := range daos {
		out[i] = *toWatchlistItem(&daos[i])
	}
	return out, nil
}

func (s *pgStore) UpdateWatchlistItem(ctx context.Context, id, userID string, in portfolio.UpdateWatchlistItemInput) (*portfolio.WatchlistItem, error) {
	q := s.db.NewUpdate().
		Model((*WatchlistItemDao)(nil)).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("user_id = ?", userID)

	if in.PriceAlertHigh != nil {
		q = q.Set("price_alert_high = ?::DECIMAL", *in.PriceAlertHigh)
	}
	if in.PriceAlertLow != nil {
		q = q.Set("price_alert_low = ?::DECIMAL", *in.PriceAlertLow)
	}
	if in.Notes != nil {
		q = q.Set("notes = ?", *in.Notes)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to update watchlist item: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrWatchlistItemNotFound
	}

	dao := new(WatchlistItemDao)
	if err = s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to reload watchlist item: %w", err)
	}
	return toWatchlistItem(dao), nil
}

func (s *pgStore) DeleteWatchlistItem(ctx context.Context, id, userID string) error {
	res, err := s.db.NewDelete().
		Model((*WatchlistItemDao)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete watchlist item: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrWatchlistItemNotFound
	}
	return nil
}

func (s *pgStore) UpsertSnapshot(ctx context.Context, snap *portfolio.Snapshot) error {
	dao := toSnapshotDao(snap)
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (portfolio_id, snapshot_date) DO UPDATE").
		Set("total_value = EXCLUDED.total_value").
		Set("change = EXCLUDED.change").
		Set("change_percentage = EXCLUDED.change_percentage").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (s *pgStore) ListSnapshots(ctx context.Context, portfolioID string) ([]portfolio.Snapshot, error) {
	var daos []SnapshotDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("portfolio_id = ?", portfolioID).
		Order("snapshot_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	out := make([]portfolio.Snapshot, len(daos))
	for i := range daos {
		out[i] = *toSnapshot(&daos[i])
	}
	return out, nil
}

func (s *pgStore) LatestSnapshotBefore(ctx context.Context, portfolioID string, day time.Time) (*portfolio.Snapshot, error) {
	dao := new(SnapshotDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("portfolio_id = ?", portfolioID).
		Where("snapshot_date < ?", day).
		Order("snapshot_date DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return toSnapshot(dao), nil
}
