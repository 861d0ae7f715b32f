package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/tokenfolio/portfolio-api/pkg/app/errors"
	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
)

var testNow = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*analyticsService, *fakeStore, *fakeSource) {
	t.Helper()
	store := newFakeStore()
	prices := newFakeSource()
	svc := &analyticsService{
		store:  store,
		prices: prices,
		limits: Limits{}.withDefaults(),
		logger: zap.NewNop(),
		now:    func() time.Time { return testNow },
	}
	return svc, store, prices
}

func seedPortfolio(store *fakeStore, id, userID, name, username string, createdAt time.Time) {
	store.addPortfolio(portfolio.Portfolio{
		ID:        id,
		UserID:    userID,
		Name:      name,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, username)
}

func seedAsset(store *fakeStore, portfolioID, tokenAddress, balance, avgCost string, chainID int64) {
	store.assets[portfolioID] = append(store.assets[portfolioID], portfolio.Asset{
		ID:           tokenAddress + "-asset",
		PortfolioID:  portfolioID,
		TokenAddress: tokenAddress,
		ChainID:      chainID,
		Balance:      balance,
		AverageCost:  avgCost,
	})
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPortfolioAnalytics_ComputesTotalsAndPNL(t *testing.T) {
	svc, store, prices := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow.Add(-48*time.Hour))

	// 10 tokens bought at 2, now worth 3: value 30, cost 20, pnl 10 (+50%).
	seedAsset(store, "p1", "0xaaa", "10", "2", 1)
	prices.set("0xaaa", 1, "3")
	// 5 tokens at 10, no cost basis: value 50.
	seedAsset(store, "p1", "0xbbb", "5", "", 1)
	prices.set("0xbbb", 1, "10")

	result, err := svc.PortfolioAnalytics(context.Background(), "p1", "user-1")
	if err != nil {
		t.Fatalf("PortfolioAnalytics() failed: %v", err)
	}

	if result.TotalValue != "80" {
		t.Errorf("total value = %s, want 80", result.TotalValue)
	}
	if result.TotalCost != "20" {
		t.Errorf("total cost = %s, want 20", result.TotalCost)
	}
	if result.PNL != "60" {
		t.Errorf("pnl = %s, want 60", result.PNL)
	}
	if !almostEqual(result.PNLPercentage, 300) {
		t.Errorf("pnl percentage = %v, want 300", result.PNLPercentage)
	}

	if len(result.Assets) != 2 {
		t.Fatalf("expected 2 asset summaries, got %d", len(result.Assets))
	}
	// Sorted by value descending: 0xbbb (50) before 0xaaa (30).
	if result.Assets[0].TokenAddress != "0xbbb" {
		t.Errorf("first asset = %s, want 0xbbb", result.Assets[0].TokenAddress)
	}
	if !almostEqual(result.Assets[0].Allocation, 62.5) {
		t.Errorf("allocation = %v, want 62.5", result.Assets[0].Allocation)
	}
	if !almostEqual(result.Assets[1].Allocation, 37.5) {
		t.Errorf("allocation = %v, want 37.5", result.Assets[1].Allocation)
	}
	if result.Assets[1].PNL != "10" || !almostEqual(result.Assets[1].PNLPercentage, 50) {
		t.Errorf("asset pnl = %s (%v%%), want 10 (50%%)", result.Assets[1].PNL, result.Assets[1].PNLPercentage)
	}
	// No cost basis means no per-asset pnl.
	if result.Assets[0].PNL != "" {
		t.Errorf("expected empty pnl without cost basis, got %s", result.Assets[0].PNL)
	}
}

func TestPortfolioAnalytics_UnknownPriceValuesZero(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)
	seedAsset(store, "p1", "0xunknown", "100", "", 1)

	result, err := svc.PortfolioAnalytics(context.Background(), "p1", "user-1")
	if err != nil {
		t.Fatalf("PortfolioAnalytics() failed: %v", err)
	}
	if result.TotalValue != "0" {
		t.Errorf("total value = %s, want 0", result.TotalValue)
	}
	if result.Assets[0].Value != "0" || result.Assets[0].PriceUSD != "0" {
		t.Errorf("unknown token should value at zero, got value=%s price=%s",
			result.Assets[0].Value, result.Assets[0].PriceUSD)
	}
	// Empty portfolio value means allocation stays zero, not NaN.
	if result.Assets[0].Allocation != 0 {
		t.Errorf("allocation = %v, want 0", result.Assets[0].Allocation)
	}
	if result.PNLPercentage != 0 {
		t.Errorf("pnl percentage = %v, want 0 with zero cost", result.PNLPercentage)
	}
}

func TestPortfolioAnalytics_TopAssetsTruncated(t *testing.T) {
	svc, store, prices := newTestService(t)
	svc.limits.TopAssets = 2
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)

	tokens := []string{"0xa", "0xb", "0xc", "0xd"}
	for i, addr := range tokens {
		seedAsset(store, "p1", addr, "1", "", 1)
		prices.set(addr, 1, []string{"5", "20", "10", "1"}[i])
	}

	result, err := svc.PortfolioAnalytics(context.Background(), "p1", "user-1")
	if err != nil {
		t.Fatalf("PortfolioAnalytics() failed: %v", err)
	}
	if len(result.TopAssets) != 2 {
		t.Fatalf("expected 2 top assets, got %d", len(result.TopAssets))
	}
	if result.TopAssets[0].TokenAddress != "0xb" || result.TopAssets[1].TokenAddress != "0xc" {
		t.Errorf("top assets = [%s %s], want [0xb 0xc]",
			result.TopAssets[0].TokenAddress, result.TopAssets[1].TokenAddress)
	}
	if len(result.Assets) != 4 {
		t.Errorf("full asset list should be untruncated, got %d", len(result.Assets))
	}
}

func TestPortfolioAnalytics_DeduplicatesPriceLookups(t *testing.T) {
	svc, store, prices := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)
	seedAsset(store, "p1", "0xaaa", "1", "", 1)
	seedAsset(store, "p1", "0xaaa", "2", "", 1)
	seedAsset(store, "p1", "0xaaa", "3", "", 137)
	prices.set("0xaaa", 1, "2")
	prices.set("0xaaa", 137, "2")

	if _, err := svc.PortfolioAnalytics(context.Background(), "p1", "user-1"); err != nil {
		t.Fatalf("PortfolioAnalytics() failed: %v", err)
	}
	// Same token on the same chain is fetched once; a different chain is a
	// separate lookup.
	if prices.calls != 2 {
		t.Errorf("oracle calls = %d, want 2", prices.calls)
	}
}

func TestPortfolioAnalytics_NotOwned(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)

	_, err := svc.PortfolioAnalytics(context.Background(), "p1", "user-2")
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Fatalf("expected not found for foreign portfolio, got %v", err)
	}
}

func TestPortfolioAnalytics_OracleFailure(t *testing.T) {
	svc, store, prices := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)
	seedAsset(store, "p1", "0xaaa", "1", "", 1)
	prices.err = errors.New("oracle down")

	_, err := svc.PortfolioAnalytics(context.Background(), "p1", "user-1")
	if !apperrors.Is(err, apperrors.CategoryDependencyFailure) {
		t.Fatalf("expected dependency failure, got %v", err)
	}
}

func TestUserAnalytics_AggregatesAcrossPortfolios(t *testing.T) {
	svc, store, prices := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow.Add(-2*time.Hour))
	seedPortfolio(store, "p2", "user-1", "Side", "alice", testNow.Add(-time.Hour))
	seedPortfolio(store, "p3", "user-2", "Other", "bob", testNow)

	seedAsset(store, "p1", "0xaaa", "3", "", 1)
	seedAsset(store, "p2", "0xaaa", "1", "", 1)
	seedAsset(store, "p3", "0xaaa", "100", "", 1)
	prices.set("0xaaa", 1, "10")

	store.transactions = []portfolio.Transaction{
		{ID: "t1", UserID: "user-1", PortfolioID: "p1", ChainID: 1, Amount: "1", Timestamp: testNow.Add(-time.Hour)},
		{ID: "t2", UserID: "user-1", PortfolioID: "p1", ChainID: 137, Amount: "1", Timestamp: testNow.Add(-3 * 24 * time.Hour)},
		{ID: "t3", UserID: "user-1", PortfolioID: "p2", ChainID: 137, Amount: "1", Timestamp: testNow.Add(-20 * 24 * time.Hour)},
		{ID: "t4", UserID: "user-1", PortfolioID: "p2", ChainID: 1, Amount: "1", Timestamp: testNow.Add(-60 * 24 * time.Hour)},
		{ID: "t5", UserID: "user-2", PortfolioID: "p3", ChainID: 42161, Amount: "1", Timestamp: testNow},
	}

	result, err := svc.UserAnalytics(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("UserAnalytics() failed: %v", err)
	}

	if result.TotalPortfolios != 2 {
		t.Errorf("total portfolios = %d, want 2", result.TotalPortfolios)
	}
	if result.TotalAssets != 2 {
		t.Errorf("total assets = %d, want 2", result.TotalAssets)
	}
	if result.TotalTransactions != 4 {
		t.Errorf("total transactions = %d, want 4", result.TotalTransactions)
	}
	if result.TotalValue != "40" {
		t.Errorf("total value = %s, want 40", result.TotalValue)
	}

	if len(result.PortfolioBreakdown) != 2 {
		t.Fatalf("expected 2 breakdown entries, got %d", len(result.PortfolioBreakdown))
	}
	if !almostEqual(result.PortfolioBreakdown[0].Allocation, 75) {
		t.Errorf("p1 allocation = %v, want 75", result.PortfolioBreakdown[0].Allocation)
	}
	if !almostEqual(result.PortfolioBreakdown[1].Allocation, 25) {
		t.Errorf("p2 allocation = %v, want 25", result.PortfolioBreakdown[1].Allocation)
	}

	activity := result.ActivitySummary
	if activity.Last24Hours != 1 || activity.Last7Days != 2 || activity.Last30Days != 3 {
		t.Errorf("activity = %+v, want 1/2/3", activity)
	}
	// 137 has two transactions in the 30d window, 1 has one.
	if activity.MostActiveChain != 137 {
		t.Errorf("most active chain = %d, want 137", activity.MostActiveChain)
	}
}

func TestUserAnalytics_MostActiveChainTieBreak(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)

	store.transactions = []portfolio.Transaction{
		{ID: "t1", UserID: "user-1", PortfolioID: "p1", ChainID: 137, Amount: "1", Timestamp: testNow.Add(-time.Hour)},
		{ID: "t2", UserID: "user-1", PortfolioID: "p1", ChainID: 1, Amount: "1", Timestamp: testNow.Add(-2 * time.Hour)},
	}

	result, err := svc.UserAnalytics(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("UserAnalytics() failed: %v", err)
	}
	if result.ActivitySummary.MostActiveChain != 1 {
		t.Errorf("most active chain = %d, want lowest chain ID 1 on tie", result.ActivitySummary.MostActiveChain)
	}
}

func TestUserAnalytics_NoPortfolios(t *testing.T) {
	svc, _, _ := newTestService(t)

	result, err := svc.UserAnalytics(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("UserAnalytics() failed: %v", err)
	}
	if result.TotalPortfolios != 0 || result.TotalValue != "0" {
		t.Errorf("empty user = %+v, want zero totals", result)
	}
	if result.ActivitySummary.MostActiveChain != 0 {
		t.Errorf("most active chain = %d, want 0 without activity", result.ActivitySummary.MostActiveChain)
	}
}

func TestTransactionStats(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)

	store.transactions = []portfolio.Transaction{
		{ID: "t1", UserID: "user-1", PortfolioID: "p1", Type: portfolio.TxSwap, ChainID: 1, Amount: "1.5", Timestamp: testNow.Add(-time.Hour)},
		{ID: "t2", UserID: "user-1", PortfolioID: "p1", Type: portfolio.TxSwap, ChainID: 1, Amount: "2.5", Timestamp: testNow.Add(-2 * time.Hour)},
		{ID: "t3", UserID: "user-1", PortfolioID: "p1", Type: portfolio.TxTransfer, ChainID: 137, Amount: "10", Timestamp: testNow.Add(-26 * time.Hour)},
		// Outside the 7 day window.
		{ID: "t4", UserID: "user-1", PortfolioID: "p1", Type: portfolio.TxTransfer, ChainID: 1, Amount: "1", Timestamp: testNow.Add(-10 * 24 * time.Hour)},
	}

	stats, err := svc.TransactionStats(context.Background(), "user-1", 7)
	if err != nil {
		t.Fatalf("TransactionStats() failed: %v", err)
	}

	if stats.Days != 7 || stats.Total != 3 {
		t.Errorf("days=%d total=%d, want 7/3", stats.Days, stats.Total)
	}
	if stats.ByType[portfolio.TxSwap] != 2 || stats.ByType[portfolio.TxTransfer] != 1 {
		t.Errorf("by type = %v, want swap:2 transfer:1", stats.ByType)
	}
	if stats.ByChain[1] != 2 || stats.ByChain[137] != 1 {
		t.Errorf("by chain = %v, want 1:2 137:1", stats.ByChain)
	}

	if len(stats.Daily) != 2 {
		t.Fatalf("expected 2 daily buckets, got %d", len(stats.Daily))
	}
	// Buckets are in ascending date order with exact decimal volume sums.
	if stats.Daily[0].Date != "2025-06-14" || stats.Daily[0].Volume != "10" {
		t.Errorf("first bucket = %+v, want 2025-06-14 volume 10", stats.Daily[0])
	}
	if stats.Daily[1].Date != "2025-06-15" || stats.Daily[1].Count != 2 || stats.Daily[1].Volume != "4" {
		t.Errorf("second bucket = %+v, want 2025-06-15 count 2 volume 4", stats.Daily[1])
	}
}

func TestTransactionStats_ClampsDays(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)

	stats, err := svc.TransactionStats(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("TransactionStats() failed: %v", err)
	}
	if stats.Days != 30 {
		t.Errorf("days = %d, want default 30", stats.Days)
	}

	stats, err = svc.TransactionStats(context.Background(), "user-1", 10000)
	if err != nil {
		t.Fatalf("TransactionStats() failed: %v", err)
	}
	if stats.Days != svc.limits.MaxStatsDays {
		t.Errorf("days = %d, want clamped to %d", stats.Days, svc.limits.MaxStatsDays)
	}
}

func TestLeaderboard(t *testing.T) {
	svc, store, prices := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Alpha", "alice", testNow.Add(-3*time.Hour))
	seedPortfolio(store, "p2", "user-2", "Beta", "bob", testNow.Add(-2*time.Hour))
	seedPortfolio(store, "p3", "user-3", "Gamma", "carol", testNow.Add(-time.Hour))

	prices.set("0xaaa", 1, "10")
	seedAsset(store, "p1", "0xaaa", "5", "", 1)  // 50
	seedAsset(store, "p2", "0xaaa", "20", "", 1) // 200
	seedAsset(store, "p3", "0xaaa", "5", "", 1)  // 50, newer than p1

	entries, err := svc.Leaderboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("Leaderboard() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	if entries[0].Username != "bob" || entries[0].Rank != 1 || entries[0].TotalValue != "200" {
		t.Errorf("first entry = %+v, want bob at rank 1 with 200", entries[0])
	}
	// Tied values rank the older portfolio first.
	if entries[1].PortfolioName != "Alpha" || entries[2].PortfolioName != "Gamma" {
		t.Errorf("tie order = [%s %s], want [Alpha Gamma]", entries[1].PortfolioName, entries[2].PortfolioName)
	}
}

func TestLeaderboard_ClampsLimit(t *testing.T) {
	svc, store, prices := newTestService(t)
	svc.limits.MaxLeaderboardSize = 2
	prices.set("0xaaa", 1, "1")
	for i, id := range []string{"p1", "p2", "p3"} {
		seedPortfolio(store, id, "user-1", id, "alice", testNow.Add(time.Duration(i)*time.Hour))
		seedAsset(store, id, "0xaaa", "1", "", 1)
	}

	entries, err := svc.Leaderboard(context.Background(), 50)
	if err != nil {
		t.Fatalf("Leaderboard() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %d, want clamped to 2", len(entries))
	}

	entries, err = svc.Leaderboard(context.Background(), -1)
	if err != nil {
		t.Fatalf("Leaderboard() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2 (default capped by max)", len(entries))
	}
}

func TestCreateSnapshot(t *testing.T) {
	svc, store, prices := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)
	seedAsset(store, "p1", "0xaaa", "10", "", 1)
	prices.set("0xaaa", 1, "5")

	snap, err := svc.CreateSnapshot(context.Background(), "p1", "user-1")
	if err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}

	wantDay := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if !snap.Date.Equal(wantDay) {
		t.Errorf("snapshot date = %v, want %v", snap.Date, wantDay)
	}
	if snap.TotalValue != "50" {
		t.Errorf("total value = %s, want 50", snap.TotalValue)
	}
	// First snapshot has no prior day to compare against.
	if snap.Change != "0" || snap.ChangePercentage != 0 {
		t.Errorf("change = %s (%v%%), want 0", snap.Change, snap.ChangePercentage)
	}
}

func TestCreateSnapshot_ChangeFromPreviousDay(t *testing.T) {
	svc, store, prices := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)
	seedAsset(store, "p1", "0xaaa", "10", "", 1)
	prices.set("0xaaa", 1, "6")

	yesterday := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	store.snapshots["p1"] = []portfolio.Snapshot{
		{PortfolioID: "p1", Date: yesterday, TotalValue: "50", Change: "0"},
	}

	snap, err := svc.CreateSnapshot(context.Background(), "p1", "user-1")
	if err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}
	if snap.TotalValue != "60" || snap.Change != "10" {
		t.Errorf("snapshot = value %s change %s, want 60/10", snap.TotalValue, snap.Change)
	}
	if !almostEqual(snap.ChangePercentage, 20) {
		t.Errorf("change percentage = %v, want 20", snap.ChangePercentage)
	}
}

func TestCreateSnapshot_SameDayOverwrites(t *testing.T) {
	svc, store, prices := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)
	seedAsset(store, "p1", "0xaaa", "10", "", 1)
	prices.set("0xaaa", 1, "5")

	if _, err := svc.CreateSnapshot(context.Background(), "p1", "user-1"); err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}

	prices.set("0xaaa", 1, "7")
	snap, err := svc.CreateSnapshot(context.Background(), "p1", "user-1")
	if err != nil {
		t.Fatalf("CreateSnapshot() failed: %v", err)
	}

	if len(store.snapshots["p1"]) != 1 {
		t.Fatalf("expected 1 snapshot row for the day, got %d", len(store.snapshots["p1"]))
	}
	if snap.TotalValue != "70" || store.snapshots["p1"][0].TotalValue != "70" {
		t.Errorf("same-day snapshot should overwrite, got %s", store.snapshots["p1"][0].TotalValue)
	}
}

func TestCreateSnapshot_NotOwned(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)

	_, err := svc.CreateSnapshot(context.Background(), "p1", "user-2")
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Fatalf("expected not found for foreign portfolio, got %v", err)
	}
}

func TestSnapshotPortfolio_Unscoped(t *testing.T) {
	svc, store, prices := newTestService(t)
	seedPortfolio(store, "p1", "user-1", "Main", "alice", testNow)
	seedAsset(store, "p1", "0xaaa", "2", "", 1)
	prices.set("0xaaa", 1, "3")

	snap, err := svc.SnapshotPortfolio(context.Background(), "p1")
	if err != nil {
		t.Fatalf("SnapshotPortfolio() failed: %v", err)
	}
	if snap.TotalValue != "6" {
		t.Errorf("total value = %s, want 6", snap.TotalValue)
	}

	if _, err = svc.SnapshotPortfolio(context.Background(), "missing"); !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Fatalf("expected not found for missing portfolio, got %v", err)
	}
}

func TestStoreFailurePropagates(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.forcedErr = errors.New("database down")

	_, err := svc.UserAnalytics(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, store.forcedErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
	if !apperrors.IsInternalError(err) {
		t.Errorf("store failure should be internal, got %v", err)
	}
}
