package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
	"github.com/tokenfolio/portfolio-api/pkg/portfoliostore"
	"github.com/tokenfolio/portfolio-api/pkg/priceoracle"
)

// fakeStore is an in-memory Store for unit tests. Not safe for concurrent
// use; the tests are single-goroutine.
type fakeStore struct {
	portfolios   map[string]*portfolio.Portfolio
	owners       map[string]string // portfolio ID -> username
	assets       map[string][]portfolio.Asset
	transactions []portfolio.Transaction
	snapshots    map[string][]portfolio.Snapshot

	forcedErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		portfolios: make(map[string]*portfolio.Portfolio),
		owners:     make(map[string]string),
		assets:     make(map[string][]portfolio.Asset),
		snapshots:  make(map[string][]portfolio.Snapshot),
	}
}

func (f *fakeStore) addPortfolio(p portfolio.Portfolio, username string) {
	cp := p
	f.portfolios[p.ID] = &cp
	f.owners[p.ID] = username
}

func (f *fakeStore) GetPortfolio(_ context.Context, id, userID string) (*portfolio.Portfolio, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	p, ok := f.portfolios[id]
	if !ok || p.UserID != userID {
		return nil, portfoliostore.ErrPortfolioNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetPortfolioByID(_ context.Context, id string) (*portfolio.Portfolio, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	p, ok := f.portfolios[id]
	if !ok {
		return nil, portfoliostore.ErrPortfolioNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListPortfolios(_ context.Context, userID string) ([]portfolio.Portfolio, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	var out []portfolio.Portfolio
	for _, p := range f.portfolios {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) ListAllPortfolios(_ context.Context) ([]portfolio.PortfolioWithOwner, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	var out []portfolio.PortfolioWithOwner
	for _, p := range f.portfolios {
		out = append(out, portfolio.PortfolioWithOwner{Portfolio: *p, Username: f.owners[p.ID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) ListAssets(_ context.Context, portfolioID string) ([]portfolio.Asset, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	return append([]portfolio.Asset(nil), f.assets[portfolioID]...), nil
}

func (f *fakeStore) CountAssetsByUser(_ context.Context, userID string) (int, error) {
	if f.forcedErr != nil {
		return 0, f.forcedErr
	}
	n := 0
	for pid, assets := range f.assets {
		if p, ok := f.portfolios[pid]; ok && p.UserID == userID {
			n += len(assets)
		}
	}
	return n, nil
}

func (f *fakeStore) ListTransactions(_ context.Context, opts ...portfoliostore.TxQueryOption) ([]portfolio.Transaction, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	var q portfoliostore.TxQueryOptions
	for _, opt := range opts {
		opt(&q)
	}

	var out []portfolio.Transaction
	for _, tx := range f.transactions {
		if q.UserID != nil && tx.UserID != *q.UserID {
			continue
		}
		if q.PortfolioID != nil && tx.PortfolioID != *q.PortfolioID {
			continue
		}
		if q.Since != nil && tx.Timestamp.Before(*q.Since) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeStore) CountTransactions(_ context.Context, userID string) (int, error) {
	if f.forcedErr != nil {
		return 0, f.forcedErr
	}
	n := 0
	for _, tx := range f.transactions {
		if tx.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountTransactionsSince(_ context.Context, userID string, since time.Time) (int, error) {
	if f.forcedErr != nil {
		return 0, f.forcedErr
	}
	n := 0
	for _, tx := range f.transactions {
		if tx.UserID == userID && !tx.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) UpsertSnapshot(_ context.Context, s *portfolio.Snapshot) error {
	if f.forcedErr != nil {
		return f.forcedErr
	}
	existing := f.snapshots[s.PortfolioID]
	for i, snap := range existing {
		if snap.Date.Equal(s.Date) {
			existing[i] = *s
			return nil
		}
	}
	f.snapshots[s.PortfolioID] = append(existing, *s)
	return nil
}

func (f *fakeStore) ListSnapshots(_ context.Context, portfolioID string) ([]portfolio.Snapshot, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	out := append([]portfolio.Snapshot(nil), f.snapshots[portfolioID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeStore) LatestSnapshotBefore(_ context.Context, portfolioID string, day time.Time) (*portfolio.Snapshot, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	var best *portfolio.Snapshot
	for i := range f.snapshots[portfolioID] {
		snap := f.snapshots[portfolioID][i]
		if !snap.Date.Before(day) {
			continue
		}
		if best == nil || snap.Date.After(best.Date) {
			cp := snap
			best = &cp
		}
	}
	return best, nil
}

// fakeSource serves prices from a fixed map and counts lookups. Tokens
// missing from the map come back as unknown quotes.
type fakeSource struct {
	prices map[string]decimal.Decimal
	calls  int
	err    error
}

func newFakeSource() *fakeSource {
	return &fakeSource{prices: make(map[string]decimal.Decimal)}
}

func (f *fakeSource) set(tokenAddress string, chainID int64, price string) {
	f.prices[fmt.Sprintf("%d:%s", chainID, tokenAddress)] = decimal.RequireFromString(price)
}

func (f *fakeSource) Price(_ context.Context, tokenAddress string, chainID int64) (*priceoracle.Quote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	quote := &priceoracle.Quote{TokenAddress: tokenAddress, ChainID: chainID, AsOf: time.Now().UTC()}
	if p, ok := f.prices[fmt.Sprintf("%d:%s", chainID, tokenAddress)]; ok {
		quote.PriceUSD = p
		quote.Known = true
	}
	return quote, nil
}
