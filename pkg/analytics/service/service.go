package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tokenfolio/portfolio-api/internal/metrics"
	"github.com/tokenfolio/portfolio-api/pkg/analytics"
	apperrors "github.com/tokenfolio/portfolio-api/pkg/app/errors"
	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
	"github.com/tokenfolio/portfolio-api/pkg/portfoliostore"
	"github.com/tokenfolio/portfolio-api/pkg/priceoracle"
)

const (
	defaultTopAssets          = 5
	defaultRecentTransactions = 10
	defaultMaxStatsDays       = 365
	defaultLeaderboardSize    = 10
	defaultMaxLeaderboardSize = 100

	activityWindow = 30 * 24 * time.Hour
)

// Store is the narrow data-access interface for the analytics service.
type Store interface {
	GetPortfolio(ctx context.Context, id, userID string) (*portfolio.Portfolio, error)
	GetPortfolioByID(ctx context.Context, id string) (*portfolio.Portfolio, error)
	ListPortfolios(ctx context.Context, userID string) ([]portfolio.Portfolio, error)
	ListAllPortfolios(ctx context.Context) ([]portfolio.PortfolioWithOwner, error)

	ListAssets(ctx context.Context, portfolioID string) ([]portfolio.Asset, error)
	CountAssetsByUser(ctx context.Context, userID string) (int, error)

	ListTransactions(ctx context.Context, opts ...portfoliostore.TxQueryOption) ([]portfolio.Transaction, error)
	CountTransactions(ctx context.Context, userID string) (int, error)
	CountTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error)

	UpsertSnapshot(ctx context.Context, snap *portfolio.Snapshot) error
	ListSnapshots(ctx context.Context, portfolioID string) ([]portfolio.Snapshot, error)
	LatestSnapshotBefore(ctx context.Context, portfolioID string, day time.Time) (*portfolio.Snapshot, error)
}

// Limits bounds the sizes of analytics responses. Zero fields fall back to
// the package defaults.
type Limits struct {
	TopAssets          int
	RecentTransactions int
	MaxStatsDays       int
	MaxLeaderboardSize int
}

func (l Limits) withDefaults() Limits {
	if l.TopAssets <= 0 {
		l.TopAssets = defaultTopAssets
	}
	if l.RecentTransactions <= 0 {
		l.RecentTransactions = defaultRecentTransactions
	}
	if l.MaxStatsDays <= 0 {
		l.MaxStatsDays = defaultMaxStatsDays
	}
	if l.MaxLeaderboardSize <= 0 {
		l.MaxLeaderboardSize = defaultMaxLeaderboardSize
	}
	return l
}

// Service defines the analytics read operations plus the snapshot upsert.
type Service interface {
	PortfolioAnalytics(ctx context.Context, portfolioID, userID string) (*analytics.PortfolioAnalytics, error)
	UserAnalytics(ctx context.Context, userID string) (*analytics.UserAnalytics, error)
	TransactionStats(ctx context.Context, userID string, days int) (*analytics.TransactionStats, error)
	Leaderboard(ctx context.Context, limit int) ([]analytics.LeaderboardEntry, error)
	CreateSnapshot(ctx context.Context, portfolioID, userID string) (*portfolio.Snapshot, error)

	// SnapshotPortfolio is the unscoped variant used by the background
	// snapshot worker; HTTP callers go through CreateSnapshot.
	SnapshotPortfolio(ctx context.Context, portfolioID string) (*portfolio.Snapshot, error)
}

type analyticsService struct {
	store  Store
	prices priceoracle.Source
	limits Limits
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new analytics service
func NewService(store Store, prices priceoracle.Source, limits Limits, logger *zap.Logger) Service {
	return &analyticsService{
		store:  store,
		prices: prices,
		limits: limits.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// priceMemo deduplicates oracle lookups within one request.
type priceMemo struct {
	prices priceoracle.Source
	seen   map[string]decimal.Decimal
}

func newPriceMemo(prices priceoracle.Source) *priceMemo {
	return &priceMemo{prices: prices, seen: make(map[string]decimal.Decimal)}
}

// price returns the USD price for a token, zero when the oracle does not
// know it. Oracle transport failures surface as DependencyFailure.
func (m *priceMemo) price(ctx context.Context, tokenAddress string, chainID int64) (decimal.Decimal, error) {
	key := fmt.Sprintf("%d:%s", chainID, tokenAddress)
	if p, ok := m.seen[key]; ok {
		return p, nil
	}

	quote, err := m.prices.Price(ctx, tokenAddress, chainID)
	if err != nil {
		return decimal.Zero, apperrors.DependencyFailureError(err, "price oracle unavailable")
	}

	p := decimal.Zero
	if quote.Known {
		p = quote.PriceUSD
	}
	m.seen[key] = p
	return p, nil
}

func (s *analyticsService) PortfolioAnalytics(ctx context.Context, portfolioID, userID string) (*analytics.PortfolioAnalytics, error) {
	p, err := s.store.GetPortfolio(ctx, portfolioID, userID)
	if err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	assets, err := s.store.ListAssets(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	memo := newPriceMemo(s.prices)
	summaries, totalValue, totalCost, err := s.summarizeAssets(ctx, memo, assets)
	if err != nil {
		return nil, err
	}

	pnl := totalValue.Sub(totalCost)
	pnlPercentage := 0.0
	if totalCost.IsPositive() {
		pnlPercentage = pnl.Div(totalCost).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	topN := s.limits.TopAssets
	if topN > len(summaries) {
		topN = len(summaries)
	}

	recent, err := s.store.ListTransactions(ctx,
		portfoliostore.WithUser(userID),
		portfoliostore.WithPortfolio(portfolioID),
		portfoliostore.WithLimit(s.limits.RecentTransactions))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}

	snapshots, err := s.store.ListSnapshots(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	return &analytics.PortfolioAnalytics{
		PortfolioID:        p.ID,
		Name:               p.Name,
		TotalValue:         totalValue.String(),
		TotalCost:          totalCost.String(),
		PNL:                pnl.String(),
		PNLPercentage:      pnlPercentage,
		Assets:             summaries,
		TopAssets:          summaries[:topN],
		RecentTransactions: recent,
		DailySnapshots:     snapshots,
	}, nil
}

// summarizeAssets prices every asset and returns per-asset summaries sorted
// by value descending, plus the portfolio's exact value and cost totals.
func (s *analyticsService) summarizeAssets(ctx context.Context, memo *priceMemo, assets []portfolio.Asset) ([]analytics.AssetSummary, decimal.Decimal, decimal.Decimal, error) {
	type priced struct {
		asset portfolio.Asset
		price decimal.Decimal
		value decimal.Decimal
		cost  decimal.Decimal
		// hasCost distinguishes "no cost basis" from a zero cost.
		hasCost bool
	}

	totalValue := decimal.Zero
	totalCost := decimal.Zero
	rows := make([]priced, 0, len(assets))

	for _, a := range assets {
		balance, err := decimal.NewFromString(a.Balance)
		if err != nil {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("asset %s has malformed balance %q: %w", a.ID, a.Balance, err)
		}

		price, err := memo.price(ctx, a.TokenAddress, a.ChainID)
		if err != nil {
			return nil, decimal.Zero, decimal.Zero, err
		}

		row := priced{asset: a, price: price, value: balance.Mul(price)}
		if a.AverageCost != "" {
			avgCost, err := decimal.NewFromString(a.AverageCost)
			if err != nil {
				return nil, decimal.Zero, decimal.Zero, fmt.Errorf("asset %s has malformed average cost %q: %w", a.ID, a.AverageCost, err)
			}
			row.cost = balance.Mul(avgCost)
			row.hasCost = true
		}

		totalValue = totalValue.Add(row.value)
		totalCost = totalCost.Add(row.cost)
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].value.GreaterThan(rows[j].value)
	})

	hundred := decimal.NewFromInt(100)
	summaries := make([]analytics.AssetSummary, len(rows))
	for i, row := range rows {
		summary := analytics.AssetSummary{
			AssetID:      row.asset.ID,
			TokenAddress: row.asset.TokenAddress,
			TokenSymbol:  row.asset.TokenSymbol,
			TokenName:    row.asset.TokenName,
			ChainID:      row.asset.ChainID,
			Balance:      row.asset.Balance,
			PriceUSD:     row.price.String(),
			Value:        row.value.String(),
		}
		if totalValue.IsPositive() {
			summary.Allocation = row.value.Div(totalValue).Mul(hundred).InexactFloat64()
		}
		if row.hasCost {
			pnl := row.value.Sub(row.cost)
			summary.Cost = row.cost.String()
			summary.PNL = pnl.String()
			if row.cost.IsPositive() {
				summary.PNLPercentage = pnl.Div(row.cost).Mul(hundred).InexactFloat64()
			}
		}
		summaries[i] = summary
	}

	return summaries, totalValue, totalCost, nil
}

func (s *analyticsService) UserAnalytics(ctx context.Context, userID string) (*analytics.UserAnalytics, error) {
	portfolios, err := s.store.ListPortfolios(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}

	memo := newPriceMemo(s.prices)
	totalValue := decimal.Zero
	values := make([]decimal.Decimal, len(portfolios))
	for i, p := range portfolios {
		assets, err := s.store.ListAssets(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list assets: %w", err)
		}
		value, err := s.portfolioValue(ctx, memo, assets)
		if err != nil {
			return nil, err
		}
		values[i] = value
		totalValue = totalValue.Add(value)
	}

	hundred := decimal.NewFromInt(100)
	breakdown := make([]analytics.PortfolioBreakdown, len(portfolios))
	for i, p := range portfolios {
		entry := analytics.PortfolioBreakdown{
			PortfolioID: p.ID,
			Name:        p.Name,
			Value:       values[i].String(),
		}
		if totalValue.IsPositive() {
			entry.Allocation = values[i].Div(totalValue).Mul(hundred).InexactFloat64()
		}
		breakdown[i] = entry
	}

	totalAssets, err := s.store.CountAssetsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}
	totalTransactions, err := s.store.CountTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	activity, err := s.activitySummary(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &analytics.UserAnalytics{
		TotalPortfolios:    len(portfolios),
		TotalAssets:        totalAssets,
		TotalTransactions:  totalTransactions,
		TotalValue:         totalValue.String(),
		PortfolioBreakdown: breakdown,
		ActivitySummary:    *activity,
	}, nil
}

func (s *analyticsService) portfolioValue(ctx context.Context, memo *priceMemo, assets []portfolio.Asset) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, a := range assets {
		balance, err := decimal.NewFromString(a.Balance)
		if err != nil {
			return decimal.Zero, fmt.Errorf("asset %s has malformed balance %q: %w", a.ID, a.Balance, err)
		}
		price, err := memo.price(ctx, a.TokenAddress, a.ChainID)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(balance.Mul(price))
	}
	return total, nil
}

func (s *analyticsService) activitySummary(ctx context.Context, userID string) (*analytics.ActivitySummary, error) {
	now := s.now().UTC()

	last24h, err := s.store.CountTransactionsSince(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count 24h transactions: %w", err)
	}
	last7d, err := s.store.CountTransactionsSince(ctx, userID, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count 7d transactions: %w", err)
	}
	last30d, err := s.store.CountTransactionsSince(ctx, userID, now.Add(-activityWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count 30d transactions: %w", err)
	}

	recent, err := s.store.ListTransactions(ctx,
		portfoliostore.WithUser(userID),
		portfoliostore.WithSince(now.Add(-activityWindow)))
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}

	// Most active chain over the 30d window, ties going to the lowest
	// chain ID so repeated calls are deterministic.
	byChain := make(map[int64]int)
	for _, tx := range recent {
		byChain[tx.ChainID]++
	}
	var mostActive int64
	best := 0
	for chainID, count := range byChain {
		if count > best || (count == best && best > 0 && chainID < mostActive) {
			mostActive = chainID
			best = count
		}
	}

	return &analytics.ActivitySummary{
		Last24Hours:     last24h,
		Last7Days:       last7d,
		Last30Days:      last30d,
		MostActiveChain: mostActive,
	}, nil
}

func (s *analyticsService) TransactionStats(ctx context.Context, userID string, days int) (*analytics.TransactionStats, error) {
	if days <= 0 {
		days = 30
	}
	if days > s.limits.MaxStatsDays {
		days = s.limits.MaxStatsDays
	}

	since := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	txs, err := s.store.ListTransactions(ctx,
		portfoliostore.WithUser(userID),
		portfoliostore.WithSince(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	byType := make(map[portfolio.TransactionType]int)
	byChain := make(map[int64]int)
	dailyCount := make(map[string]int)
	dailyVolume := make(map[string]decimal.Decimal)

	for _, tx := range txs {
		byType[tx.Type]++
		byChain[tx.ChainID]++

		day := tx.Timestamp.UTC().Format("2006-01-02")
		dailyCount[day]++

		amount, err := decimal.NewFromString(tx.Amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %s has malformed amount %q: %w", tx.ID, tx.Amount, err)
		}
		dailyVolume[day] = dailyVolume[day].Add(amount)
	}

	dayKeys := make([]string, 0, len(dailyCount))
	for day := range dailyCount {
		dayKeys = append(dayKeys, day)
	}
	sort.Strings(dayKeys)

	daily := make([]analytics.DailyBucket, len(dayKeys))
	for i, day := range dayKeys {
		daily[i] = analytics.DailyBucket{
			Date:   day,
			Count:  dailyCount[day],
			Volume: dailyVolume[day].String(),
		}
	}

	return &analytics.TransactionStats{
		Days:    days,
		Total:   len(txs),
		ByType:  byType,
		ByChain: byChain,
		Daily:   daily,
	}, nil
}

func (s *analyticsService) Leaderboard(ctx context.Context, limit int) ([]analytics.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	if limit > s.limits.MaxLeaderboardSize {
		limit = s.limits.MaxLeaderboardSize
	}

	portfolios, err := s.store.ListAllPortfolios(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}

	type ranked struct {
		portfolio portfolio.PortfolioWithOwner
		value     decimal.Decimal
	}

	memo := newPriceMemo(s.prices)
	rows := make([]ranked, len(portfolios))
	for i, p := range portfolios {
		assets, err := s.store.ListAssets(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list assets: %w", err)
		}
		value, err := s.portfolioValue(ctx, memo, assets)
		if err != nil {
			return nil, err
		}
		rows[i] = ranked{portfolio: p, value: value}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].value.Equal(rows[j].value) {
			return rows[i].value.GreaterThan(rows[j].value)
		}
		// Equal values rank the older portfolio first.
		return rows[i].portfolio.CreatedAt.Before(rows[j].portfolio.CreatedAt)
	})

	if limit > len(rows) {
		limit = len(rows)
	}
	entries := make([]analytics.LeaderboardEntry, limit)
	for i := 0; i < limit; i++ {
		entries[i] = analytics.LeaderboardEntry{
			Rank:          i + 1,
			Username:      rows[i].portfolio.Username,
			PortfolioName: rows[i].portfolio.Name,
			TotalValue:    rows[i].value.String(),
		}
	}
	return entries, nil
}

func (s *analyticsService) CreateSnapshot(ctx context.Context, portfolioID, userID string) (*portfolio.Snapshot, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID, userID); err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	snap, err := s.SnapshotPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	metrics.SnapshotsWritten.WithLabelValues("manual").Inc()
	return snap, nil
}

func (s *analyticsService) SnapshotPortfolio(ctx context.Context, portfolioID string) (*portfolio.Snapshot, error) {
	if _, err := s.store.GetPortfolioByID(ctx, portfolioID); err != nil {
		if errors.Is(err, portfoliostore.ErrPortfolioNotFound) {
			return nil, apperrors.ResourceNotFoundError(err, "portfolio not found")
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	assets, err := s.store.ListAssets(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	memo := newPriceMemo(s.prices)
	totalValue, err := s.portfolioValue(ctx, memo, assets)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	prev, err := s.store.LatestSnapshotBefore(ctx, portfolioID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to get previous snapshot: %w", err)
	}

	change := decimal.Zero
	changePercentage := 0.0
	if prev != nil {
		prevValue, err := decimal.NewFromString(prev.TotalValue)
		if err != nil {
			return nil, fmt.Errorf("snapshot for %s has malformed value %q: %w", portfolioID, prev.TotalValue, err)
		}
		change = totalValue.Sub(prevValue)
		if prevValue.IsPositive() {
			changePercentage = change.Div(prevValue).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
	}

	snap := &portfolio.Snapshot{
		PortfolioID:      portfolioID,
		Date:             today,
		TotalValue:       totalValue.String(),
		Change:           change.String(),
		ChangePercentage: changePercentage,
		CreatedAt:        now,
	}

	if err = s.store.UpsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return snap, nil
}
