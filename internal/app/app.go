package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pizza-delivery/internal/domain/inventory"
	"github.com/xenking/pizza-delivery/internal/domain/order"
	"github.com/xenking/pizza-delivery/internal/domain/payment"
	"github.com/xenking/pizza-delivery/internal/domain/pricing"
	"github.com/xenking/pizza-delivery/internal/events"
	"github.com/xenking/pizza-delivery/internal/handler"
	"github.com/xenking/pizza-delivery/internal/notify"
	"github.com/xenking/pizza-delivery/internal/razorpay"
	"github.com/xenking/pizza-delivery/internal/repository"
	"github.com/xenking/pizza-delivery/pkg/health"
	"github.com/xenking/pizza-delivery/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	ingredientRepo := repository.NewIngredientRepository(pool)
	pizzaRepo := repository.NewPizzaRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)
	backlogRepo := repository.NewBacklogRepository(pool)

	// Live update bus.
	var bus events.Bus = events.NewMemoryBus()
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = newRedis(cfg.Redis)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()
		bus = events.NewRedisBus(rdb)
		lg.Info("Live updates via redis", zap.String("addr", rdb.Options().Addr))
	}

	// Inventory bookkeeping.
	adjuster := inventory.NewAdjuster(ingredientRepo, newNotifier(lg, cfg.Mail), backlogRepo, cfg.Mail.AdminEmail)
	defer adjuster.Wait()
	sweeper := inventory.NewSweeper(backlogRepo, adjuster, cfg.Inventory.SweepInterval, cfg.Inventory.SweepBatch)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()
	defer func() { <-sweepDone }()

	// Domain services.
	gateway := razorpay.New(razorpay.Config{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		BaseURL:   cfg.Razorpay.BaseURL,
		Timeout:   cfg.Razorpay.Timeout,
	},
		razorpay.WithTracerProvider(m.TracerProvider()),
		razorpay.WithMeterProvider(m.MeterProvider()),
	)
	orderService := order.NewService(
		orderRepo,
		newPricer(cfg.Pricing, ingredientRepo),
		gateway,
		payment.NewVerifier(cfg.Razorpay.KeySecret),
		adjuster,
		bus,
		order.WithCurrency(cfg.Razorpay.Currency),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	if rdb != nil {
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", redisPinger{rdb}))
	}
	healthSvc.AddReadinessCheck("inventory_backlog", 5*time.Second,
		health.BacklogCheck(cfg.Inventory.BacklogLimit, backlogRepo.Count))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		handler.Dependencies{
			Orders:      orderService,
			Pizzas:      pizzaRepo,
			Ingredients: ingredientRepo,
			Users:       userRepo,
			Events:      bus,
			Security:    handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper)),
		},
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Router())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Websocket connections manage their own write deadlines.
		WriteTimeout:   0,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip: func(r *http.Request) bool {
					return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
				},
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("pizza-api", m),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.Drain()
		lg.Info("Draining before shutdown", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
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

// newRedis accepts either host:port or a redis:// URL.
func newRedis(cfg RedisConfig) (*redis.Client, error) {
	if strings.Contains(cfg.Addr, "://") {
		opts, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func newNotifier(lg *zap.Logger, cfg MailConfig) inventory.Notifier {
	if cfg.Host == "" {
		return notify.NewLog(lg.Named("notify"))
	}
	return notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}

func newPricer(cfg PricingConfig, catalog pricing.Catalog) pricing.Pricer {
	if pricing.Policy(cfg.Policy) == pricing.PolicyUnit {
		return pricing.NewUnitPrice(catalog)
	}
	return pricing.FlatRate{
		Base:            decimal.NewFromInt(cfg.BasePrice),
		VeggieSurcharge: decimal.NewFromInt(cfg.VeggieSurcharge),
		MeatSurcharge:   decimal.NewFromInt(cfg.MeatSurcharge),
	}
}
