// Package api implements app.Runner for the API server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tokenfolio/portfolio-api/internal/metrics"
	analyticsservice "github.com/tokenfolio/portfolio-api/pkg/analytics/service"
	apphttp "github.com/tokenfolio/portfolio-api/pkg/app/http"
	"github.com/tokenfolio/portfolio-api/pkg/auth"
	"github.com/tokenfolio/portfolio-api/pkg/config"
	"github.com/tokenfolio/portfolio-api/pkg/pgutil"
	portfolioservice "github.com/tokenfolio/portfolio-api/pkg/portfolio/service"
	"github.com/tokenfolio/portfolio-api/pkg/portfoliostore"
	"github.com/tokenfolio/portfolio-api/pkg/priceoracle"
	"github.com/tokenfolio/portfolio-api/pkg/snapshotter"
)

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	store := portfoliostore.NewStore(db)

	prices, closeRedis, err := s.buildPriceSource(logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	portfolioSvc := portfolioservice.NewService(store, logger)
	analyticsSvc := analyticsservice.NewService(store, prices, analyticsservice.Limits{
		TopAssets:          cfg.Analytics.TopAssets,
		RecentTransactions: cfg.Analytics.RecentTransactions,
		MaxStatsDays:       cfg.Analytics.MaxStatsDays,
		MaxLeaderboardSize: cfg.Analytics.MaxLeaderboardSize,
	}, logger)

	stopSnapshots := s.startSnapshotter(store, analyticsSvc, logger)
	// Safety net; the explicit call after ServeAndWait keeps shutdown order
	// deterministic.
	defer stopSnapshots()

	validator := auth.NewJWTValidator(cfg.JWKS.URL, cfg.JWKS.Issuer)
	router := s.setupRouter(validator, store, portfolioSvc,
		analyticsservice.NewLog(analyticsSvc, logger), logger)

	stopMetrics := s.startMetricsServer(logger)
	defer stopMetrics()

	err = apphttp.ServeAndWait(ctx, router, logger, &cfg.Server, cfg.Shutdown.Timeout)

	// Stop background work before deferred DB/client closes kick in.
	stopSnapshots()

	return err
}

// buildPriceSource creates the oracle client, wrapped in the redis cache
// when one is configured. The returned closer is a no-op without redis.
func (s *Server) buildPriceSource(logger *zap.Logger) (priceoracle.Source, func(), error) {
	src, err := priceoracle.NewHTTPSource(s.cfg.Oracle.BaseURL, priceoracle.Options{
		RequestTimeout: s.cfg.Oracle.RequestTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create price oracle client: %w", err)
	}

	if !s.cfg.Redis.Enabled {
		return src, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})
	logger.Info("Price quote caching enabled", zap.String("addr", s.cfg.Redis.Addr))

	cached := priceoracle.NewCachedSource(src, client, s.cfg.Redis.TTL, logger)
	return cached, func() { _ = client.Close() }, nil
}

func (s *Server) startSnapshotter(
	store portfoliostore.Store,
	analyticsSvc analyticsservice.Service,
	logger *zap.Logger,
) func() {
	if !s.cfg.Snapshots.Enabled || s.cfg.Snapshots.Interval <= 0 {
		return func() {}
	}

	worker := snapshotter.New(store, analyticsSvc, logger)
	worker.Start(s.cfg.Snapshots.InitialDelay, s.cfg.Snapshots.Interval)

	// Return stopper for deterministic shutdown ordering.
	return worker.Stop
}

func (s *Server) startMetricsServer(logger *zap.Logger) func() {
	if !s.cfg.Monitoring.Enabled {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(s.cfg.Monitoring.MetricsPort),
		Handler: mux,
	}

	go func() {
		logger.Info("Metrics endpoint enabled", zap.Int("port", s.cfg.Monitoring.MetricsPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func (s *Server) setupRouter(
	validator *auth.JWTValidator,
	users auth.UserProvisioner,
	portfolioSvc portfolioservice.Service,
	analyticsSvc analyticsservice.Service,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	r.Use(requestMetrics)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(validator, users, logger))
		portfolioservice.RegisterRoutes(r, portfolioSvc, logger)
		analyticsservice.RegisterRoutes(r, analyticsSvc, logger)
	})

	return r
}

// requestMetrics records per-route request counts and latency. Routes are
// labeled by chi pattern, not raw path, to keep cardinality bounded.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(ww.Status())
		metrics.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		metrics.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
