package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tokenfolio/portfolio-api/pkg/analytics"
	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
)

const serviceName = "AnalyticsService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the analytics Service.
// It logs method entry/exit, duration and errors.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) PortfolioAnalytics(ctx context.Context, portfolioID, userID string) (resp *analytics.PortfolioAnalytics, err error) {
	start := time.Now()

	ls.logger.Info("PortfolioAnalytics started",
		zap.String("service", serviceName),
		zap.String("method", "PortfolioAnalytics"),
		zap.String("portfolio_id", portfolioID),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("PortfolioAnalytics failed",
				zap.String("service", serviceName),
				zap.String("method", "PortfolioAnalytics"),
				zap.String("portfolio_id", portfolioID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("PortfolioAnalytics completed",
				zap.String("service", serviceName),
				zap.String("method", "PortfolioAnalytics"),
				zap.String("portfolio_id", portfolioID),
				zap.String("total_value", resp.TotalValue),
				zap.Int("asset_count", len(resp.Assets)),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.PortfolioAnalytics(ctx, portfolioID, userID)
}

func (ls *logService) UserAnalytics(ctx context.Context, userID string) (resp *analytics.UserAnalytics, err error) {
	start := time.Now()

	ls.logger.Info("UserAnalytics started",
		zap.String("service", serviceName),
		zap.String("method", "UserAnalytics"),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("UserAnalytics failed",
				zap.String("service", serviceName),
				zap.String("method", "UserAnalytics"),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("UserAnalytics completed",
				zap.String("service", serviceName),
				zap.String("method", "UserAnalytics"),
				zap.Int("portfolio_count", resp.TotalPortfolios),
				zap.String("total_value", resp.TotalValue),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.UserAnalytics(ctx, userID)
}

func (ls *logService) TransactionStats(ctx context.Context, userID string, days int) (resp *analytics.TransactionStats, err error) {
	start := time.Now()

	ls.logger.Info("TransactionStats started",
		zap.String("service", serviceName),
		zap.String("method", "TransactionStats"),
		zap.Int("days", days),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("TransactionStats failed",
				zap.String("service", serviceName),
				zap.String("method", "TransactionStats"),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("TransactionStats completed",
				zap.String("service", serviceName),
				zap.String("method", "TransactionStats"),
				zap.Int("days", resp.Days),
				zap.Int("total", resp.Total),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.TransactionStats(ctx, userID, days)
}

func (ls *logService) Leaderboard(ctx context.Context, limit int) (resp []analytics.LeaderboardEntry, err error) {
	start := time.Now()

	ls.logger.Info("Leaderboard started",
		zap.String("service", serviceName),
		zap.String("method", "Leaderboard"),
		zap.Int("limit", limit),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("Leaderboard failed",
				zap.String("service", serviceName),
				zap.String("method", "Leaderboard"),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("Leaderboard completed",
				zap.String("service", serviceName),
				zap.String("method", "Leaderboard"),
				zap.Int("entries", len(resp)),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.Leaderboard(ctx, limit)
}

func (ls *logService) CreateSnapshot(ctx context.Context, portfolioID, userID string) (resp *portfolio.Snapshot, err error) {
	start := time.Now()

	ls.logger.Info("CreateSnapshot started",
		zap.String("service", serviceName),
		zap.String("method", "CreateSnapshot"),
		zap.String("portfolio_id", portfolioID),
	)

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("CreateSnapshot failed",
				zap.String("service", serviceName),
				zap.String("method", "CreateSnapshot"),
				zap.String("portfolio_id", portfolioID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("CreateSnapshot completed",
				zap.String("service", serviceName),
				zap.String("method", "CreateSnapshot"),
				zap.String("portfolio_id", portfolioID),
				zap.String("total_value", resp.TotalValue),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.CreateSnapshot(ctx, portfolioID, userID)
}

func (ls *logService) SnapshotPortfolio(ctx context.Context, portfolioID string) (resp *portfolio.Snapshot, err error) {
	start := time.Now()

	defer func() {
		duration := time.Since(start)

		if err != nil {
			ls.logger.Error("SnapshotPortfolio failed",
				zap.String("service", serviceName),
				zap.String("method", "SnapshotPortfolio"),
				zap.String("portfolio_id", portfolioID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("SnapshotPortfolio completed",
				zap.String("service", serviceName),
				zap.String("method", "SnapshotPortfolio"),
				zap.String("portfolio_id", portfolioID),
				zap.String("total_value", resp.TotalValue),
				zap.Duration("duration", duration),
			)
		}
	}()

	return ls.svc.SnapshotPortfolio(ctx, portfolioID)
}
