package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
	"github.com/xenking/stockroom/internal/handler"
	"github.com/xenking/stockroom/internal/storage/memory"
	"github.com/xenking/stockroom/internal/storage/postgres"
	"github.com/xenking/stockroom/pkg/health"
	"github.com/xenking/stockroom/pkg/httpmiddleware"
)

// stores groups the repositories selected by Config.Storage.
type stores struct {
	products product.Repository
	orders   order.Repository
	apikeys  auth.Repository
	close    func()
}

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, hc *health.Health) (*stores, error) {
	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage, data is lost on restart")
		store := memory.New()
		return &stores{products: store, orders: store, close: func() {}}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	hc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

	return &stores{
		products: postgres.NewProductRepository(pool),
		orders:   postgres.NewOrderRepository(pool),
		apikeys:  postgres.NewAPIKeyRepository(pool),
		close:    pool.Close,
	}, nil
}

// newHandler builds the API and health routes behind the middleware chain.
func newHandler(
	ctx context.Context,
	lg *zap.Logger,
	cfg *Config,
	st *stores,
	hc *health.Health,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (http.Handler, error) {
	orderService, err := order.NewService(st.orders,
		order.WithMaxPageSize(cfg.Paging.MaxLimit),
		order.WithTracerProvider(tp),
		order.WithMeterProvider(mp),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	var authn *auth.Authenticator
	if cfg.Auth.Enabled {
		authn = auth.NewAuthenticator(st.apikeys, []byte(cfg.Auth.Pepper))
	}

	h := handler.NewHandler(
		handler.HandlerConfig{
			DefaultLimit: cfg.Paging.DefaultLimit,
			MaxLimit:     cfg.Paging.MaxLimit,
		},
		st.products,
		orderService,
		authn,
	)

	mux := http.NewServeMux()
	hc.Register(mux)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	return httpmiddleware.Wrap(mux,
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
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument("stockroom", routeFinder, tp, mp),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	), nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.Bool("auth", cfg.Auth.Enabled),
	)

	hc := health.New(lg.Named("health"))
	hc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	hc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	st, err := openStores(ctx, lg, cfg, hc)
	if err != nil {
		return err
	}
	defer st.close()

	hc.Start(ctx, cfg.Health.Interval)
	defer hc.Stop()

	apiHandler, err := newHandler(ctx, lg, cfg, st, hc, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		// Request contexts carry the root logger and outlive the shutdown
		// signal so in-flight requests can finish while the server drains.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
		Handler:     apiHandler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		hc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
	}()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	hc.SetReady(true)
	lg.Info("Server listening", zap.String("addr", ln.Addr().String()))
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
