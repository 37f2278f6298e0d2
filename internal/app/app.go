// Package app wires the checkout API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/cache"
	"github.com/xenking/kart-checkout/internal/domain/account"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
	"github.com/xenking/kart-checkout/internal/events"
	"github.com/xenking/kart-checkout/internal/gateway"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/repository"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	store := repository.NewStore(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	carts := cache.NewCartStore(rdb, cfg.CartTTL)

	var publisher order.Publisher = events.Nop{}
	if brokers := events.ParseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		p := events.NewPublisher(brokers, cfg.Kafka.Topic)
		defer func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		publisher = p
		lg.Info("Publishing order events", zap.Strings("brokers", brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	redirect := gateway.NewRedirect(gateway.RedirectConfig{
		URL:        cfg.Gateway.Redirect.URL,
		MerchantID: cfg.Gateway.Redirect.MerchantID,
		Secret:     cfg.Gateway.Redirect.Secret,
		Currency:   cfg.Gateway.Redirect.Currency,
	})
	token := gateway.NewToken(gateway.TokenConfig{
		BaseURL:        cfg.Gateway.Token.BaseURL,
		SecretKey:      cfg.Gateway.Token.SecretKey,
		Currency:       cfg.Gateway.Token.Currency,
		TracerProvider: m.TracerProvider(),
	})

	checkoutSvc, err := checkout.NewService(cfg.CheckoutSettings(), checkout.Deps{
		Carts:          carts,
		Catalog:        store.Products,
		Orders:         store.Orders,
		Vouchers:       voucher.NewService(store.Vouchers, time.Now),
		Tx:             store,
		Dispatcher:     payment.NewDispatcher(redirect, token, cfg.Gateway.Timeout),
		Verifier:       redirect,
		Events:         publisher,
		Policy:         cfg.Policy(),
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	h := handler.NewHandler(
		checkoutSvc,
		order.NewService(store.Orders),
		cart.NewService(carts, store.Products),
		account.NewAuthenticator(store.Accounts, []byte(cfg.SessionPepper)),
	)

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(store))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(carts))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	limiter := httpmiddleware.NewRateLimiter(rdb, httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})

	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Instrument("checkout-api", m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		httpmiddleware.LogRequests(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins: cfg.CORS.Origins,
			Headers: []string{"Authorization", "Content-Type", httpmiddleware.HeaderRequestID},
			Expose:  []string{httpmiddleware.HeaderRequestID},
			MaxAge:  86400,
		}),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware())
		h.Mount(r)
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Card charges wait for the gateway.
		WriteTimeout:   cfg.Gateway.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        r,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(gCtx, 10*time.Second)
	})
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
