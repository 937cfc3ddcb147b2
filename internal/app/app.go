package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/vconn/internal/domain/contract"
	"github.com/xenking/vconn/internal/domain/delivery"
	"github.com/xenking/vconn/internal/domain/order"
	"github.com/xenking/vconn/internal/domain/quota"
	"github.com/xenking/vconn/internal/handler"
	"github.com/xenking/vconn/internal/idempotency"
	"github.com/xenking/vconn/internal/report"
	"github.com/xenking/vconn/internal/repository"
	"github.com/xenking/vconn/pkg/health"
	"github.com/xenking/vconn/pkg/httpmiddleware"
)

const serviceName = "vconn-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var idem handler.Idempotency
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
		idem = idempotency.NewStore(rdb, cfg.Idempotency.TTL)
		lg.Info("Idempotency keys enabled", zap.Duration("ttl", cfg.Idempotency.TTL))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	tx := repository.NewTxRunner(pool, m.TracerProvider())
	contractRepo := repository.NewContractRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	ledger := quota.NewLedger(repository.NewQuotaRepository(pool))
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services.
	metrics, err := order.NewMetrics(m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create order metrics")
	}
	registry := contract.NewRegistry(tx, contractRepo)
	orderSvc := order.NewService(tx, contractRepo, ledger, orderRepo, metrics)
	deliverySvc := delivery.NewService(
		repository.NewDeliveryRepository(pool),
		registry,
		orderSvc,
		ledger,
		report.NewManifestGenerator(),
	)

	h := handler.New(registry, orderSvc, deliverySvc, idem)
	authn := handler.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Router(authn))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{
					"Content-Type",
					httpmiddleware.APIKeyHeader,
					httpmiddleware.RequestIDHeader,
					handler.IdempotencyKeyHeader,
				},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, handler.ReplayedHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, m),
		),
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
