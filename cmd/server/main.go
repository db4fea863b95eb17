package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"nurbuild/backend/internal/cache"
	"nurbuild/backend/internal/config"
	"nurbuild/backend/internal/credit"
	"nurbuild/backend/internal/httpapi"
	"nurbuild/backend/internal/logger"
	"nurbuild/backend/internal/metrics"
	"nurbuild/backend/internal/report"
	"nurbuild/backend/internal/service"
	"nurbuild/backend/internal/store"
	"nurbuild/backend/internal/store/memory"
	pgstore "nurbuild/backend/internal/store/postgres"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nurbuild",
		Short:         "Credit and debt backend for a building materials business",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the PostgreSQL schema and exit",
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "reconcile",
			Short: "Refresh overdue statuses and recompute every customer's outstanding balance",
			Long: `Reconcile walks every customer, recomputes the outstanding balance
from the customer's live debts and corrects any drift. Overdue statuses
are refreshed first so the stored debt states match today's date.`,
			RunE: runReconcile,
		},
	)
	return root
}

// runtime holds everything a command needs plus the closers to release on exit.
type runtime struct {
	cfg     config.Config
	service *service.Service
	repo    store.Repository
	metrics *metrics.Metrics
	closers []func() error
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg := config.Load()

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Format = cfg.LogFormat
	logCloser, err := logger.Setup(logCfg)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, closers: []func() error{logCloser.Close}}
	startLog := logger.WithComponent("bootstrap")

	policy, err := credit.ParsePolicy(cfg.CreditZeroLimitPolicy)
	if err != nil {
		rt.Close()
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		if err := pg.Migrate(connectCtx); err != nil {
			_ = pg.Close()
			rt.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
		rt.repo = pg
		rt.closers = append(rt.closers, pg.Close)
		startLog.Info().Str("repository", "postgres").Msg("repository ready")
	} else {
		rt.repo = memory.NewSeeded()
		startLog.Info().Str("repository", "memory").Msg("repository ready")
	}

	summaryCache := cache.SummaryCache(cache.NoopSummaryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(connectCtx); err != nil {
			startLog.Warn().Err(err).Msg("redis unavailable, using noop summary cache")
			_ = redisCache.Close()
		} else {
			summaryCache = redisCache
			rt.closers = append(rt.closers, redisCache.Close)
			startLog.Info().Str("cache", "redis").Msg("summary cache ready")
		}
	}

	rt.metrics = metrics.New()
	reports := report.NewEngine(summaryCache, time.Duration(cfg.SummaryCacheTTLSeconds)*time.Second)
	rt.service = service.New(rt.repo, reports, service.Options{
		Credit:         credit.NewValidator(policy),
		Metrics:        rt.metrics,
		DefaultDueDays: cfg.DefaultDueDays,
	})
	return rt, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := validateSecurityConfig(rt.cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}

	auth := httpapi.NewAuthManager(ctx, rt.cfg.AuthSecret, time.Duration(rt.cfg.AccessTokenTTLMinutes)*time.Minute, rt.repo)
	api := httpapi.New(rt.service, auth, httpapi.Options{
		AllowedOrigin:      rt.cfg.AllowedOrigin,
		LoginRatePerMinute: rt.cfg.LoginRateLimitPerMinute,
		Metrics:            rt.metrics,
	})

	return serveHTTP(ctx, rt.cfg.Address(), api.Handler())
}

// serveHTTP blocks until ctx is cancelled or the listener fails.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srvLog := logger.WithComponent("http")
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srvLog.Info().Str("addr", addr).Str("version", version).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		srvLog.Info().Msg("http server shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		srvLog.Info().Msg("server stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	migrateLog := logger.WithComponent("migrate")
	migrateLog.Info().Msg("schema applied")
	return nil
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	return reconcileAll(cmd.Context(), rt.service)
}

func reconcileAll(ctx context.Context, svc *service.Service) error {
	recLog := logger.WithComponent("reconcile")
	ctx = service.WithActor(ctx, service.SystemActor)

	_, changed, err := svc.RefreshOverdueStatuses(ctx)
	if err != nil {
		return fmt.Errorf("refresh overdue statuses: %w", err)
	}

	results, err := svc.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("reconcile balances: %w", err)
	}

	adjusted := 0
	for _, res := range results {
		if !res.Adjusted {
			continue
		}
		adjusted++
		recLog.Info().
			Str("customer_id", res.CustomerID).
			Str("recorded", string(res.Recorded)).
			Str("computed", string(res.Computed)).
			Msg("balance corrected")
	}
	recLog.Info().
		Int("overdue_refreshed", changed).
		Int("customers", len(results)).
		Int("adjusted", adjusted).
		Msg("reconcile finished")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" && cfg.DatabaseURL != "" {
		return fmt.Errorf("ALLOWED_ORIGIN must name a concrete origin when running against PostgreSQL")
	}
	return nil
}
