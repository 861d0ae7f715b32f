// Package snapshotter runs the periodic valuation job that writes one daily
// snapshot row per portfolio.
package snapshotter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokenfolio/portfolio-api/internal/metrics"
	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
)

// PortfolioLister enumerates every portfolio in the system.
type PortfolioLister interface {
	ListAllPortfolios(ctx context.Context) ([]portfolio.PortfolioWithOwner, error)
}

// SnapshotWriter values one portfolio and upserts its snapshot for the
// current UTC day.
type SnapshotWriter interface {
	SnapshotPortfolio(ctx context.Context, portfolioID string) (*portfolio.Snapshot, error)
}

// Snapshotter periodically snapshots all portfolios in the background.
type Snapshotter struct {
	portfolios PortfolioLister
	writer     SnapshotWriter
	logger     *zap.Logger

	runTimeout time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Snapshotter
func New(portfolios PortfolioLister, writer SnapshotWriter, logger *zap.Logger) *Snapshotter {
	return &Snapshotter{
		portfolios: portfolios,
		writer:     writer,
		logger:     logger,
		runTimeout: 2 * time.Minute,
		stopCh:     make(chan struct{}),
	}
}

// SnapshotAll snapshots every portfolio. One portfolio failing does not stop
// the run; failures are logged and counted, and the run as a whole only
// errors when the portfolio listing itself fails.
func (s *Snapshotter) SnapshotAll(ctx context.Context) error {
	s.logger.Info("Starting snapshot run")
	start := time.Now()

	portfolios, err := s.portfolios.ListAllPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	var failed int
	for _, p := range portfolios {
		if _, err := s.writer.SnapshotPortfolio(ctx, p.ID); err != nil {
			failed++
			metrics.ErrorsTotal.WithLabelValues("snapshotter", "snapshot_failed").Inc()
			s.logger.Warn("Failed to snapshot portfolio",
				zap.String("portfolio_id", p.ID),
				zap.Error(err))
			continue
		}
		metrics.SnapshotsWritten.WithLabelValues("scheduled").Inc()
	}

	metrics.SnapshotRunDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("Snapshot run completed",
		zap.Int("portfolios", len(portfolios)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Start launches the periodic snapshot loop. The first run fires after
// initialDelay, then every interval until Stop is called.
func (s *Snapshotter) Start(initialDelay, interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Info("Started periodic snapshots",
			zap.Duration("initial_delay", initialDelay),
			zap.Duration("interval", interval))

		initial := time.NewTimer(initialDelay)
		defer initial.Stop()

		select {
		case <-initial.C:
			s.run()
		case <-s.stopCh:
			s.logger.Info("Stopping periodic snapshots")
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.run()
			case <-s.stopCh:
				s.logger.Info("Stopping periodic snapshots")
				return
			}
		}
	}()
}

func (s *Snapshotter) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()
	if err := s.SnapshotAll(ctx); err != nil {
		s.logger.Error("Periodic snapshot run failed", zap.Error(err))
	}
}

// Stop stops the periodic snapshots and waits for the loop to exit. Safe to
// call more than once.
func (s *Snapshotter) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
