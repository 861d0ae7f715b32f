package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	apperrors "github.com/tokenfolio/portfolio-api/pkg/app/errors"
	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
	"github.com/tokenfolio/portfolio-api/pkg/portfoliostore"
)

var (
	ErrInvalidTokenAddress = errors.New("invalid token address")
	ErrInvalidAmount       = errors.New("invalid decimal amount")
	ErrInvalidTxType       = errors.New("invalid transaction type")
)

// Store is the narrow data-access interface for the portfolio service.
// Defined here to keep the service decoupled from portfoliostore implementation details.
type Store interface {
	CreatePortfolio(ctx context.Context, p *portfolio.Portfolio) error
	GetPortfolio(ctx context.Context, id, userID string) (*portfolio.Portfolio, error)
	ListPortfolios(ctx context.Context, userID string) ([]portfolio.Portfolio, error)
	UpdatePortfolio(ctx context.Context, id, userID string, in portfolio.UpdatePortfolioInput) (*portfolio.Portfolio, error)
	DeletePortfolio(ctx context.Context, id, userID string) error
	SetDefaultPortfolio(ctx context.Context, id, userID string) error
	CountPortfolios(ctx context.Context, userID string) (int, error)

	CreateAsset(ctx context.Context, a *portfolio.Asset) error
	ListAssets(ctx context.Context, portfolioID string) ([]portfolio.Asset, error)
	UpdateAssetBalance(ctx context.Context, id, userID, balance string) (*portfolio.Asset, error)
	DeleteAsset(ctx context.Context, id, userID string) error

	CreateTransaction(ctx context.Context, tx *portfolio.Transaction) error
	ListTransactions(ctx context.Context, opts ...portfoliostore.TxQueryOption) ([]portfolio.Transaction, error)

	CreateWatchlistItem(ctx context.Context, w *portfolio.WatchlistItem) error
	ListWatchlist(ctx context.Context, userID string) ([]portfolio.WatchlistItem, error)
	UpdateWatchlistItem(ctx context.Context, id, userID string, in portfolio.UpdateWatchlistItemInput) (*portfolio.WatchlistItem, error)
	DeleteWatchlistItem(ctx context.Context, id, userID string) error
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	PortfolioID string
	Since       *time.Time
	Limit       int
	Offset      int
}

// Service defines the portfolio management business logic. Every operation is
// scoped to the calling user; resources owned by other users read as absent.
type Service interface {
	CreatePortfolio(ctx context.Context, userID string, in portfolio.CreatePortfolioInput) (*portfolio.Portfolio, error)
	GetPortfolio(ctx context.Context, id, userID string) (*portfolio.PortfolioWithAssets, error)
	ListPortfolios(ctx context.Context, userID string) ([]portfolio.Portfolio, error)
	UpdatePortfolio(ctx context.Context, id, userID string, in portfolio.UpdatePortfolioInput) (*portfolio.Portfolio, error)
	DeletePortfolio(ctx context.Context, id, userID string) error
	SetDefaultPortfolio(ctx context.Context, id, userID string) (*portfolio.Portfolio, error)

	AddAsset(ctx context.Context, portfolioID, userID string, in portfolio.AddAssetInput) (*portfolio.Asset, error)
	ListAssets(ctx context.Context, portfolioID, userID string) ([]portfolio.Asset, error)
	UpdateAssetBalance(ctx context.Context, assetID, userID, balance string) (*portfolio.Asset, error)
	RemoveAsset(ctx context.Context, assetID, userID string) error

	RecordTransaction(ctx context.Context, userID string, in portfolio.RecordTransactionInput) (*portfolio.Transaction, error)
	ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]portfolio.Transaction, error)

	AddWatchlistItem(ctx context.Context, userID string, in portfolio.AddWatchlistItemInput) (*portfolio.WatchlistItem, error)
	ListWatchlist(ctx context.Context, userID string) ([]portfolio.WatchlistItem, error)
	UpdateWatchlistItem(ctx context.Context, id, userID string, in portfolio.UpdateWatchlistItemInput) (*portfolio.WatchlistItem, error)
	RemoveWatchlistItem(ctx context.Context, id, userID string) error
}

type portfolioService struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a new portfolio service
func NewService(store Store, logger *zap.Logger) Service {
	return &portfolioService{
		store:  store,
		logger: logger,
	}
}

func (s *portfolioService) CreatePortfolio(ctx context.Context, userID string, in portfolio.CreatePortfolioInput) (*portfolio.Portfolio, error) {
	count, err := s.store.CountPortfolios(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count portfolios: %w", err)
	}

	now := time.Now().UTC()
	p := &portfolio.Portfolio{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        in.Name,
		Description: in.Description,
		// The user's first portfolio becomes the default automatically.
		IsDefault: count == 0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err = s.store.CreatePortfolio(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}
	return p, nil
}

func (s *portfolioService) GetPortfolio(ctx context.Context, id, userID string) (*portfolio.PortfolioWithAssets, error) {
	p, err := s.store.GetPortfolio(ctx, id, userID)
	if err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	assets, err := s.store.ListAssets(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	return &portfolio.PortfolioWithAssets{Portfolio: *p, Assets: assets}, nil
}

func (s *portfolioService) ListPortfolios(ctx context.Context, userID string) ([]portfolio.Portfolio, error) {
	out, err := s.store.ListPortfolios(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	return out, nil
}

func (s *portfolioService) UpdatePortfolio(ctx context.Context, id, userID string, in portfolio.UpdatePortfolioInput) (*portfolio.Portfolio, error) {
	p, err := s.store.UpdatePortfolio(ctx, id, userID, in)
	if err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return nil, fmt.Errorf("failed to update portfolio: %w", err)
	}
	return p, nil
}

func (s *portfolioService) DeletePortfolio(ctx context.Context, id, userID string) error {
	p, err := s.store.GetPortfolio(ctx, id, userID)
	if err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return fmt.Errorf("failed to get portfolio: %w", err)
	}
	if p.IsDefault {
		count, err := s.store.CountPortfolios(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to count portfolios: %w", err)
		}
		// The default portfolio can only go when it is the last one left,
		// otherwise the user would end up with no default.
		if count > 1 {
			return apperrors.ConflictError(nil, "cannot delete the default portfolio while others exist")
		}
	}

	if err = s.store.DeletePortfolio(ctx, id, userID); err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	return nil
}

func (s *portfolioService) SetDefaultPortfolio(ctx context.Context, id, userID string) (*portfolio.Portfolio, error) {
	if err := s.store.SetDefaultPortfolio(ctx, id, userID); err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return nil, fmt.Errorf("failed to set default portfolio: %w", err)
	}

	p, err := s.store.GetPortfolio(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload portfolio: %w", err)
	}
	return p, nil
}

func (s *portfolioService) AddAsset(ctx context.Context, portfolioID, userID string, in portfolio.AddAssetInput) (*portfolio.Asset, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID, userID); err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	tokenAddress, err := normalizeTokenAddress(in.TokenAddress)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid token_address")
	}
	balance, err := parseNonNegativeDecimal(in.Balance)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid balance")
	}
	averageCost := ""
	if in.AverageCost != "" {
		cost, err := parseNonNegativeDecimal(in.AverageCost)
		if err != nil {
			return nil, apperrors.BadRequestError(err, "invalid average_cost")
		}
		averageCost = cost.String()
	}

	now := time.Now().UTC()
	a := &portfolio.Asset{
		ID:            uuid.NewString(),
		PortfolioID:   portfolioID,
		TokenAddress:  tokenAddress,
		TokenSymbol:   in.TokenSymbol,
		TokenName:     in.TokenName,
		TokenDecimals: in.TokenDecimals,
		ChainID:       in.ChainID,
		Balance:       balance.String(),
		AverageCost:   averageCost,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err = s.store.CreateAsset(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}
	return a, nil
}

func (s *portfolioService) ListAssets(ctx context.Context, portfolioID, userID string) ([]portfolio.Asset, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID, userID); err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	assets, err := s.store.ListAssets(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets, nil
}

func (s *portfolioService) UpdateAssetBalance(ctx context.Context, assetID, userID, balance string) (*portfolio.Asset, error) {
	parsed, err := parseNonNegativeDecimal(balance)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid balance")
	}

	a, err := s.store.UpdateAssetBalance(ctx, assetID, userID, parsed.String())
	if err != nil {
		if errors.Is(err, portfoliostore.ErrAssetNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "asset not found")
		}
		return nil, fmt.Errorf("failed to update asset balance: %w", err)
	}
	return a, nil
}

func (s *portfolioService) RemoveAsset(ctx context.Context, assetID, userID string) error {
	if err := s.store.DeleteAsset(ctx, assetID, userID); err != nil {
		if errors.Is(err, portfoliostore.ErrAssetNotFound) {
			return apperrors.ResourceNotFoundError(err, "asset not found")
		}
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return nil
}

func (s *portfolioService) RecordTransaction(ctx context.Context, userID string, in portfolio.RecordTransactionInput) (*portfolio.Transaction, error) {
	if _, err := s.store.GetPortfolio(ctx, in.PortfolioID, userID); err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	txType := portfolio.TransactionType(strings.ToLower(in.Type))
	if !txType.Valid() {
		return nil, apperrors.BadRequestError(ErrInvalidTxType, fmt.Sprintf("unknown transaction type %q", in.Type))
	}

	tokenAddress, err := normalizeTokenAddress(in.TokenAddress)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid token_address")
	}
	amount, err := parseNonNegativeDecimal(in.Amount)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid amount")
	}

	gasUsed, err := parseOptionalInteger(in.GasUsed)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid gas_used")
	}
	gasPrice, err := parseOptionalInteger(in.GasPrice)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid gas_price")
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tx := &portfolio.Transaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		PortfolioID:  in.PortfolioID,
		TxHash:       strings.ToLower(in.TxHash),
		Type:         txType,
		TokenAddress: tokenAddress,
		TokenSymbol:  in.TokenSymbol,
		Amount:       amount.String(),
		FromAddress:  strings.ToLower(in.FromAddress),
		ToAddress:    strings.ToLower(in.ToAddress),
		ChainID:      in.ChainID,
		BlockNumber:  in.BlockNumber,
		GasUsed:      gasUsed,
		GasPrice:     gasPrice,
		Timestamp:    ts.UTC(),
		CreatedAt:    time.Now().UTC(),
	}

	if err = s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

func (s *portfolioService) ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]portfolio.Transaction, error) {
	opts := []portfoliostore.TxQueryOption{portfoliostore.WithUser(userID)}

	if filter.PortfolioID != "" {
		if _, err := s.store.GetPortfolio(ctx, filter.PortfolioID, userID); err != nil {
			if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
				return nil, apperrors.ResourceNotFoundError(err, "portfolio not found")
			}
			return nil, fmt.Errorf("failed to get portfolio: %w", err)
		}
		opts = append(opts, portfoliostore.WithPortfolio(filter.PortfolioID))
	}
	if filter.Since != nil {
		opts = append(opts, portfoliostore.WithSince(*filter.Since))
	}
	if filter.Limit > 0 {
		opts = append(opts, portfoliostore.WithLimit(filter.Limit))
	}
	if filter.Offset > 0 {
		opts = append(opts, portfoliostore.WithOffset(filter.Offset))
	}

	txs, err := s.store.ListTransactions(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (s *portfolioService) AddWatchlistItem(ctx context.Context, userID string, in portfolio.AddWatchlistItemInput) (*portfolio.WatchlistItem, error) {
	tokenAddress, err := normalizeTokenAddress(in.TokenAddress)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "invalid token_address")
	}

	high, low := "", ""
	if in.PriceAlertHigh != "" {
		parsed, err := parseNonNegativeDecimal(in.PriceAlertHigh)
		if err != nil {
			return nil, apperrors.BadRequestError(err, "invalid price_alert_high")
		}
		high = parsed.String()
	}
	if in.PriceAlertLow != "" {
		parsed, err := parseNonNegativeDecimal(in.PriceAlertLow)
		if err != nil {
			return nil, apperrors.BadRequestError(err, "invalid price_alert_low")
		}
		low = parsed.String()
	}

	now := time.Now().UTC()
	w := &portfolio.WatchlistItem{
		ID:             uuid.NewString(),
		UserID:         userID,
		TokenAddress:   tokenAddress,
		TokenSymbol:    in.TokenSymbol,
		TokenName:      in.TokenName,
		ChainID:        in.ChainID,
		PriceAlertHigh: high,
		PriceAlertLow:  low,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err = s.store.CreateWatchlistItem(ctx, w); err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.ConflictError(err, "token already on watchlist")
		}
		return nil, fmt.Errorf("failed to create watchlist item: %w", err)
	}
	return w, nil
}

func (s *portfolioService) ListWatchlist(ctx context.Context, userID string) ([]portfolio.WatchlistItem, error) {
	items, err := s.store.ListWatchlist(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	return items, nil
}

func (s *portfolioService) UpdateWatchlistItem(ctx context.Context, id, userID string, in portfolio.UpdateWatchlistItemInput) (*portfolio.WatchlistItem, error) {
	if in.PriceAlertHigh != nil && *in.PriceAlertHigh != "" {
		if _, err := parseNonNegativeDecimal(*in.PriceAlertHigh); err != nil {
			return nil, apperrors.BadRequestError(err, "invalid price_alert_high")
		}
	}
	if in.PriceAlertLow != nil && *in.PriceAlertLow != "" {
		if _, err := parseNonNegativeDecimal(*in.PriceAlertLow); err != nil {
			return nil, apperrors.BadRequestError(err, "invalid price_alert_low")
		}
	}

	w, err := s.store.UpdateWatchlistItem(ctx, id, userID, in)
	if err != nil {
		if errors.Is(err, portfoliostore.ErrWatchlistItemNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "watchlist item not found")
		}
		return nil, fmt.Errorf("failed to update watchlist item: %w", err)
	}
	return w, nil
}

func (s *portfolioService) RemoveWatchlistItem(ctx context.Context, id, userID string) error {
	if err := s.store.DeleteWatchlistItem(ctx, id, userID); err != nil {
		if errors.Is(err, portfoliostore.ErrWatchlistItemNotFound) {
			return apperrors.ResourceNotFoundError(err, "watchlist item not found")
		}
		return fmt.Errorf("failed to delete watchlist item: %w", err)
	}
	return nil
}

// Helper functions

// normalizeTokenAddress validates an EVM token address and lowercases it so
// lookups and cache keys are case-insensitive.
func normalizeTokenAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %s", ErrInvalidTokenAddress, addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

func parseNonNegativeDecimal(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, value)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, value)
	}
	return d, nil
}

// parseOptionalInteger validates gas fields, which are whole-number decimals.
func parseOptionalInteger(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	d, err := parseNonNegativeDecimal(value)
	if err != nil {
		return "", err
	}
	if !d.IsInteger() {
		return "", fmt.Errorf("%w: %s is not an integer", ErrInvalidAmount, value)
	}
	return d.String(), nil
}

// isUniqueViolation checks whether postgres rejected the write with a
// unique constraint error (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}
