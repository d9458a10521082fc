package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/xenking/canteen/internal/auth"
	"github.com/xenking/canteen/internal/domain/cart"
	"github.com/xenking/canteen/internal/domain/item"
	"github.com/xenking/canteen/internal/domain/order"
	"github.com/xenking/canteen/internal/domain/session"
	"github.com/xenking/canteen/internal/feed"
	"github.com/xenking/canteen/internal/handler"
	"github.com/xenking/canteen/internal/storage/docrepo"
	"github.com/xenking/canteen/internal/storage/docstore"
	"github.com/xenking/canteen/internal/storage/memory"
	"github.com/xenking/canteen/internal/storage/postgres"
	"github.com/xenking/canteen/pkg/health"
	"github.com/xenking/canteen/pkg/httpmiddleware"
)

// backends are the opened storage dependencies.
type backends struct {
	gateway docstore.Gateway
	tx      order.Transactor
	carts   cart.Store
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects the document store and the cart store selected in
// cfg and registers their readiness checks.
func openBackends(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health) (_ *backends, rerr error) {
	b := &backends{}
	defer func() {
		if rerr != nil {
			b.close()
		}
	}()

	switch cfg.Store.Driver {
	case DriverPostgres:
		if cfg.Store.Migrate {
			if err := postgres.RunMigrations(cfg.Store.DatabaseURL); err != nil {
				return nil, errors.Wrap(err, "run migrations")
			}
		}
		pool, err := postgres.NewPool(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		b.closers = append(b.closers, pool.Close)

		store := postgres.NewStore(pool)
		b.gateway = store
		b.tx = docrepo.NewOrderTransactor(store)
		hs.Register(health.Readiness, "postgres", health.PingCheck(pool), health.Timeout(5*time.Second))
	default:
		lg.Warn("Using in-memory document store, data is lost on restart")
		b.gateway = memory.New()
	}

	switch cfg.Cart.Driver {
	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cart.RedisAddr,
			Password: cfg.Cart.RedisPassword,
			DB:       cfg.Cart.RedisDB,
		})
		b.closers = append(b.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrap(err, "connect redis")
		}
		b.carts = cart.NewRedisStore(client, cfg.Cart.Prefix, cfg.Cart.TTL)
		hs.Register(health.Readiness, "redis", health.RedisCheck(client), health.NonCritical())
	default:
		b.carts = cart.NewMemoryStore()
	}
	return b, nil
}

// originChecker accepts WebSocket handshakes from the CORS origins.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("cart", cfg.Cart.Driver),
	)

	healthSvc := health.New()
	b, err := openBackends(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer b.close()

	healthSvc.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	users := docrepo.NewUserRepository(b.gateway)
	hub := feed.NewHub(originChecker(cfg.CORS.Origins))

	// Domain services.
	items := item.NewService(docrepo.NewItemRepository(b.gateway))
	orderOpts := []order.Option{
		order.WithNotifier(hub),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	}
	if b.tx != nil {
		orderOpts = append(orderOpts, order.WithTransactor(b.tx))
	}
	orders := order.NewService(docrepo.NewOrderStore(b.gateway), users, docrepo.NewRepairStore(b.gateway), orderOpts...)

	signInLimit := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.SignIn.Max,
		Window: cfg.SignIn.Window,
	})
	go signInLimit.Run(ctx)

	// HTTP handlers.
	h := handler.New(handler.Config{
		AllowAdminSignup: cfg.Auth.AllowAdminSignup,
		SignInLimit:      signInLimit,
	}, handler.Deps{
		Accounts: session.NewGate(users, cfg.Auth.BcryptCost),
		Tokens:   auth.NewIssuer([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL),
		Catalog:  items,
		Carts:    cart.NewService(b.carts, items, orders),
		Orders:   orders,
		Feed:     hub,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Headers:     []string{"Content-Type", "Authorization"},
				Expose:      []string{httpmiddleware.RequestIDHeader, "Content-Disposition"},
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      86400,
			}),
			httpmiddleware.Instrument("canteen-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		// Hijacked feed connections are not tracked by Shutdown.
		hub.Close()
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
