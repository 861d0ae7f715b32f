package service

import (
	"context"
	"sort"
	"time"

	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
	"github.com/tokenfolio/portfolio-api/pkg/portfoliostore"
)

// fakeStore is an in-memory Store used by the service tests. Reads and
// writes honor the same ownership scoping the postgres store applies.
// Setting forcedErr makes every method fail with it.
type fakeStore struct {
	portfolios   map[string]*portfolio.Portfolio
	assets       map[string]*portfolio.Asset
	transactions []*portfolio.Transaction
	watchlist    map[string]*portfolio.WatchlistItem

	forcedErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		portfolios: make(map[string]*portfolio.Portfolio),
		assets:     make(map[string]*portfolio.Asset),
		watchlist:  make(map[string]*portfolio.WatchlistItem),
	}
}

func (f *fakeStore) CreatePortfolio(_ context.Context, p *portfolio.Portfolio) error {
	if f.forcedErr != nil {
		return f.forcedErr
	}
	cp := *p
	f.portfolios[p.ID] = &cp
	return nil
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

func (f *fakeStore) UpdatePortfolio(_ context.Context, id, userID string, in portfolio.UpdatePortfolioInput) (*portfolio.Portfolio, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	p, ok := f.portfolios[id]
	if !ok || p.UserID != userID {
		return nil, portfoliostore.ErrPortfolioNotFound
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (f *fakeStore) DeletePortfolio(_ context.Context, id, userID string) error {
	if f.forcedErr != nil {
		return f.forcedErr
	}
	p, ok := f.portfolios[id]
	if !ok || p.UserID != userID {
		return portfoliostore.ErrPortfolioNotFound
	}
	delete(f.portfolios, id)
	for aid, a := range f.assets {
		if a.PortfolioID == id {
			delete(f.assets, aid)
		}
	}
	return nil
}

func (f *fakeStore) SetDefaultPortfolio(_ context.Context, id, userID string) error {
	if f.forcedErr != nil {
		return f.forcedErr
	}
	target, ok := f.portfolios[id]
	if !ok || target.UserID != userID {
		return portfoliostore.ErrPortfolioNotFound
	}
	for _, p := range f.portfolios {
		if p.UserID == userID {
			p.IsDefault = false
		}
	}
	target.IsDefault = true
	return nil
}

func (f *fakeStore) CountPortfolios(_ context.Context, userID string) (int, error) {
	if f.forcedErr != nil {
		return 0, f.forcedErr
	}
	count := 0
	for _, p := range f.portfolios {
		if p.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CreateAsset(_ context.Context, a *portfolio.Asset) error {
	if f.forcedErr != nil {
		return f.forcedErr
	}
	cp := *a
	f.assets[a.ID] = &cp
	return nil
}

// getAsset resolves an asset with the same transitive ownership check the
// real store applies.
func (f *fakeStore) getAsset(id, userID string) (*portfolio.Asset, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	a, ok := f.assets[id]
	if !ok {
		return nil, portfoliostore.ErrAssetNotFound
	}
	p, ok := f.portfolios[a.PortfolioID]
	if !ok || p.UserID != userID {
		return nil, portfoliostore.ErrAssetNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ListAssets(_ context.Context, portfolioID string) ([]portfolio.Asset, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	var out []portfolio.Asset
	for _, a := range f.assets {
		if a.PortfolioID == portfolioID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdateAssetBalance(_ context.Context, id, userID, balance string) (*portfolio.Asset, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	a, err := f.getAsset(id, userID)
	if err != nil {
		return nil, err
	}
	stored := f.assets[a.ID]
	stored.Balance = balance
	stored.UpdatedAt = time.Now().UTC()
	cp := *stored
	return &cp, nil
}

func (f *fakeStore) DeleteAsset(_ context.Context, id, userID string) error {
	if f.forcedErr != nil {
		return f.forcedErr
	}
	if _, err := f.getAsset(id, userID); err != nil {
		return err
	}
	delete(f.assets, id)
	return nil
}

func (f *fakeStore) CreateTransaction(_ context.Context, tx *portfolio.Transaction) error {
	if f.forcedErr != nil {
		return f.forcedErr
	}
	cp := *tx
	f.transactions = append(f.transactions, &cp)
	return nil
}

func (f *fakeStore) ListTransactions(_ context.Context, opts ...portfoliostore.TxQueryOption) ([]portfolio.Transaction, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	options := &portfoliostore.TxQueryOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var out []portfolio.Transaction
	for _, tx := range f.transactions {
		if options.UserID != nil && tx.UserID != *options.UserID {
			continue
		}
		if options.PortfolioID != nil && tx.PortfolioID != *options.PortfolioID {
			continue
		}
		if options.Since != nil && tx.Timestamp.Before(*options.Since) {
			continue
		}
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })

	if options.Offset > 0 {
		if options.Offset >= len(out) {
			return nil, nil
		}
		out = out[options.Offset:]
	}
	if options.Limit > 0 && len(out) > options.Limit {
		out = out[:options.Limit]
	}
	return out, nil
}

func (f *fakeStore) CreateWatchlistItem(_ context.Context, w *portfolio.WatchlistItem) error {
	if f.forcedErr != nil {
		return f.forcedErr
	}
	cp := *w
	f.watchlist[w.ID] = &cp
	return nil
}

func (f *fakeStore) ListWatchlist(_ context.Context, userID string) ([]portfolio.WatchlistItem, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	var out []portfolio.WatchlistItem
	for _, w := range f.watchlist {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdateWatchlistItem(_ context.Context, id, userID string, in portfolio.UpdateWatchlistItemInput) (*portfolio.WatchlistItem, error) {
	if f.forcedErr != nil {
		return nil, f.forcedErr
	}
	w, ok := f.watchlist[id]
	if !ok || w.UserID != userID {
		return nil, portfoliostore.ErrWatchlistItemNotFound
	}
	if in.PriceAlertHigh != nil {
		w.PriceAlertHigh = *in.PriceAlertHigh
	}
	if in.PriceAlertLow != nil {
		w.PriceAlertLow = *in.PriceAlertLow
	}
	if in.Notes != nil {
		w.Notes = *in.Notes
	}
	w.UpdatedAt = time.Now().UTC()
	cp := *w
	return &cp, nil
}

func (f *fakeStore) DeleteWatchlistItem(_ context.Context, id, userID string) error {
	if f.forcedErr != nil {
		return f.forcedErr
	}
	w, ok := f.watchlist[id]
	if !ok || w.UserID != userID {
		return portfoliostore.ErrWatchlistItemNotFound
	}
	delete(f.watchlist, id)
	return nil
}
