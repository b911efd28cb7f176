package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/loyalty-kart/internal/domain/auth"
	"github.com/xenking/loyalty-kart/internal/domain/order"
	"github.com/xenking/loyalty-kart/internal/domain/payment"
	"github.com/xenking/loyalty-kart/internal/domain/recommend"
	"github.com/xenking/loyalty-kart/internal/handler"
	"github.com/xenking/loyalty-kart/internal/outbox"
	"github.com/xenking/loyalty-kart/internal/seed"
	rediscache "github.com/xenking/loyalty-kart/internal/storage/redis"
	"github.com/xenking/loyalty-kart/pkg/health"
	"github.com/xenking/loyalty-kart/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	st, err := openStores(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	healthSvc := health.New(health.WithLogger(lg.Named("health")))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	if st.db != nil {
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(st.db))
	}

	// Recommendation cache, optional.
	var cache recommend.Cache
	if cfg.Redis.URL != "" {
		client, err := rediscache.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = client.Close() }()
		cache = rediscache.New(client, cfg.Redis.TTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(client))
		lg.Info("Recommendation cache enabled", zap.Duration("ttl", cfg.Redis.TTL))
	}

	// Domain services.
	issuer, err := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.TTL)
	if err != nil {
		return errors.Wrap(err, "create token issuer")
	}
	authService := auth.NewService(st.users, issuer)
	recommendService := recommend.NewService(st.products, st.orders, cache)
	orderService, err := order.NewService(st.tx, st.products, st.users, st.orders, st.outbox,
		order.WithMaxAttempts(cfg.Settlement.MaxAttempts),
		order.WithRetryBackoff(cfg.Settlement.RetryBackoff),
		order.WithAfterCommit(recommendService.Invalidate),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	payments := payment.NewSimulator(st.orders, cfg.Payment.SuccessRate, nil)

	if cfg.Storage == StorageMemory && cfg.Demo.Password != "" {
		created, err := seed.DemoUser(ctx, authService, cfg.Demo.Email, cfg.Demo.Password)
		if err != nil {
			return errors.Wrap(err, "seed demo user")
		}
		lg.Info("Demo account ready", zap.String("email", cfg.Demo.Email), zap.Bool("created", created))
	}

	g, gctx := errgroup.WithContext(ctx)

	// Settlement event relay, optional.
	if len(cfg.Kafka.Brokers) > 0 {
		writer := outbox.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		relay := outbox.NewRelay(st.outbox, writer, outbox.Config{
			Interval: cfg.Kafka.Interval,
			Batch:    cfg.Kafka.Batch,
		}, m.TracerProvider())
		healthSvc.AddReadinessCheck("kafka", 2*time.Second, health.KafkaCheck(cfg.Kafka.Brokers))
		healthSvc.AddReadinessCheck("outbox", 2*time.Second, health.BacklogCheck(st.backlog(cfg.Kafka.Backlog), cfg.Kafka.Backlog))

		g.Go(func() error {
			defer func() {
				if err := writer.Close(); err != nil {
					lg.Warn("Close kafka writer", zap.Error(err))
				}
			}()
			lg.Info("Outbox relay started",
				zap.Strings("brokers", cfg.Kafka.Brokers),
				zap.String("topic", cfg.Kafka.Topic),
			)
			return relay.Run(zctx.Base(gctx, lg.Named("outbox")))
		})
	}

	healthSvc.Start(gctx, 10*time.Second)
	healthSvc.SetReady(true)

	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		handler.Deps{
			Auth:      authService,
			Products:  st.products,
			Users:     st.users,
			Orders:    orderService,
			Recommend: recommendService,
			Payments:  payments,
		},
	)

	// Mux: health endpoints and API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{
					"Content-Type",
					"Authorization",
					handler.IdempotencyKeyHeader,
					httpmiddleware.RequestIDHeader,
				},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(gctx, httpmiddleware.RateLimitConfig{
				Max:        cfg.RateLimit.Max,
				Window:     cfg.RateLimit.Window,
				TrustProxy: cfg.RateLimit.TrustProxy,
			}),
			httpmiddleware.Instrument("loyalty-api", routeFinder, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
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
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
