package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Overland-East-Bay/carpool-api/internal/adapters/httpapi"
	memchatrepo "github.com/Overland-East-Bay/carpool-api/internal/adapters/memory/chatrepo"
	memevents "github.com/Overland-East-Bay/carpool-api/internal/adapters/memory/events"
	memidempotency "github.com/Overland-East-Bay/carpool-api/internal/adapters/memory/idempotency"
	memriderepo "github.com/Overland-East-Bay/carpool-api/internal/adapters/memory/riderepo"
	postgres "github.com/Overland-East-Bay/carpool-api/internal/adapters/postgres"
	pgchatrepo "github.com/Overland-East-Bay/carpool-api/internal/adapters/postgres/chatrepo"
	pgidempotency "github.com/Overland-East-Bay/carpool-api/internal/adapters/postgres/idempotency"
	pgriderepo "github.com/Overland-East-Bay/carpool-api/internal/adapters/postgres/riderepo"
	"github.com/Overland-East-Bay/carpool-api/internal/adapters/pricing/simulated"
	"github.com/Overland-East-Bay/carpool-api/internal/adapters/rabbitmq"
	"github.com/Overland-East-Bay/carpool-api/internal/app/booking"
	"github.com/Overland-East-Bay/carpool-api/internal/app/catalog"
	"github.com/Overland-East-Bay/carpool-api/internal/app/chat"
	"github.com/Overland-East-Bay/carpool-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/Overland-East-Bay/carpool-api/internal/platform/clock"
	"github.com/Overland-East-Bay/carpool-api/internal/platform/config"
	"github.com/Overland-East-Bay/carpool-api/internal/platform/logging"
	chatrepoport "github.com/Overland-East-Bay/carpool-api/internal/ports/out/chatrepo"
	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/events"
	idempotencyport "github.com/Overland-East-Bay/carpool-api/internal/ports/out/idempotency"
	riderepoport "github.com/Overland-East-Bay/carpool-api/internal/ports/out/riderepo"
)

func main() {
	cfg, err := config.LoadAppConfigFromEnv()
	if err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("invalid logging config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) error {
	// Auth configuration:
	// - Production: require JWT_* env vars and enforce bearer auth
	// - Local dev: set AUTH_MODE=dev to bypass JWT verification and use X-Debug-Subject
	var authMW func(http.Handler) http.Handler
	authIssuer := ""
	switch cfg.AuthMode {
	case "dev":
		authMW = httpapi.NewDevAuthMiddleware(cfg.DevSubject)
		authIssuer = cfg.DevIssuer
	default:
		jwtCfg, err := config.LoadJWTConfigFromEnv()
		if err != nil {
			return err
		}
		authMW = httpapi.NewAuthMiddleware(jwtverifier.New(jwtCfg))
		authIssuer = jwtCfg.Issuer
	}

	clk := platformclock.NewSystemClock()

	var (
		rideRepo  riderepoport.Repository
		chatRepo  chatrepoport.Repository
		idemStore idempotencyport.Store
	)
	switch cfg.StorageBackend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        int32(cfg.DBMaxConns),
			MaxConnIdleTime: 5 * time.Minute,
		})
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}

		rideRepo = pgriderepo.NewRepo(pool)
		chatRepo = pgchatrepo.NewRepo(pool)
		idemStore = pgidempotency.NewStoreWithRetention(pool, authIssuer, cfg.IdempotencyRetention, clk)
	default:
		rideRepo = memriderepo.NewRepo()
		chatRepo = memchatrepo.NewRepo()
		idemStore = memidempotency.NewStoreWithRetention(cfg.IdempotencyRetention, clk)
	}

	var publisher events.Publisher = memevents.Noop{}
	if cfg.EventsBackend == "amqp" {
		p, err := rabbitmq.Dial(ctx, cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer func() { _ = p.Close() }()
		publisher = p
	}

	pricingCfg, err := config.LoadPricingConfigFromEnv()
	if err != nil {
		return err
	}
	estimator, err := simulated.New(simulated.Rates{
		BaseFare:    pricingCfg.BaseFare,
		PerMile:     pricingCfg.PerMile,
		MinMiles:    pricingCfg.MinMiles,
		MaxMiles:    pricingCfg.MaxMiles,
		MinimumFare: pricingCfg.MinimumFare,
	})
	if err != nil {
		return err
	}

	rides := catalog.NewService(rideRepo, estimator, clk)
	convs := chat.NewService(chatRepo, clk)
	coord := booking.NewCoordinator(rides, convs, publisher, clk, logger)
	api := httpapi.NewServer(coord, rides, convs, idemStore, clk, logger)

	opts := httpapi.RouterOptions{AuthMiddleware: authMW, Logger: logger}
	if cfg.RateLimitPerMinute > 0 {
		limiter := httpapi.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst, time.Minute)
		defer limiter.Stop()
		opts.RateLimiter = limiter
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouterWithOptions(api, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening",
			"addr", srv.Addr,
			"auth", cfg.AuthMode,
			"storage", cfg.StorageBackend,
			"events", cfg.EventsBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
