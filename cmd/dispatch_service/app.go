package dispatchservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/postgres"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/general/redisgeo"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/ports"
	adminhandler "ride-dispatch/internal/software/adminboard/handler"
	adminservice "ride-dispatch/internal/software/adminboard/service"
	"ride-dispatch/internal/software/ride/handler"
	"ride-dispatch/internal/software/ride/service"
)

// Options are the command-line overrides for Run.
type Options struct {
	ConfigPath    string
	MaxConcurrent int // 0 keeps server.max_concurrent
}

// Run wires the dispatch service and blocks until ctx is cancelled or a component fails.
func Run(ctx context.Context, opts Options) error {
	// set up a new logger and context with a static request ID for startup logs
	logger := logger.New("dispatch-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(opts.ConfigPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, map[string]any{"path": opts.ConfigPath})
		return err
	}
	logger.SetDebug(cfg.Log.Debug)
	if opts.MaxConcurrent > 0 {
		cfg.Server.MaxConcurrent = opts.MaxConcurrent
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		logger.Error(ctx, "db_schema_failed", "Failed to apply database schema", err, nil)
		return err
	}

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.TTL)

	// dispatch core
	selector, err := dispatch.SelectorFromPolicy(cfg.Dispatch.CandidatePolicy, cfg.Dispatch.NearestK, cfg.Dispatch.NearestRadiusMiles)
	if err != nil {
		return err
	}

	var presence *dispatch.Presence
	var mirror *redisgeo.Mirror
	if rdb := redisgeo.NewClient(cfg); rdb != nil {
		defer rdb.Close()
		mirror = redisgeo.NewMirror(
			redisgeo.NewStore(rdb, cfg.Redis.GeoKey),
			func() []dispatch.DriverPresence { return presence.OnlineDrivers() },
			0, logger,
		)
		presence = dispatch.NewPresence(dispatch.WithObserver(mirror))
	} else {
		presence = dispatch.NewPresence()
	}

	registry := dispatch.NewRegistry()
	ws := websocket.NewWebSocket(logger, jwtManager, websocket.Options{
		AuthTimeout:    cfg.Dispatch.AuthTimeout,
		OutboundBuffer: cfg.Dispatch.OutboundBuffer,
	})
	router := dispatch.NewRouter(registry, presence, selector, ws, logger)
	dispatcher := dispatch.NewDispatcher(registry, presence, router, logger)
	ws.Bind(dispatcher)

	// ride service over the stores and broker adapters; broker and audit writes
	// run on the effect workers, outside the request and the ride lock
	effects := service.NewEffectQueue(cfg.Dispatch.EffectWorkers, cfg.Dispatch.EffectQueueSize, cfg.Dispatch.EffectTimeout, logger)
	svc := service.NewRideService(service.Deps{
		Logger:       logger,
		Rides:        postgres.NewRideStore(pool),
		Users:        postgres.NewUserStore(pool),
		EventLog:     postgres.NewRideEventLog(pool),
		Payments:     rabbitmq.NewPaymentGateway(rmq),
		Notifier:     rabbitmq.NewNotifier(rmq),
		StatusStream: rabbitmq.NewStatusStream(rmq),
		Events:       router,
		Effects:      effects,
		Pricing: service.Pricing{
			BaseFare:       cfg.Pricing.BaseFare,
			PerMile:        cfg.Pricing.PerMile,
			MinutesPerMile: cfg.Pricing.MinutesPerMile,
			Currency:       cfg.Pricing.Currency,
		},
	})

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	stats := func() ports.DispatchStats {
		return ports.DispatchStats{Connections: registry.Count(), OnlineDrivers: presence.Count()}
	}
	handler.NewRideHTTPHandler(svc, logger, jwtManager, ws.Connect, stats).RegisterRoutes(mux)

	admin := adminservice.NewAdminService(postgres.NewRideMetrics(pool), registry, presence, router)
	adminhandler.NewAdminHTTPHandler(admin, logger, jwtManager).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           withConcurrencyLimit(cfg.Server.MaxConcurrent, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	sweeper := dispatch.NewSweeper(presence, router, cfg.Dispatch.PresenceTTL, cfg.Dispatch.SweepInterval, logger)

	g, gctx := errgroup.WithContext(ctx)

	// stopped only after the HTTP server has finished its in-flight requests
	effectsCtx, stopEffects := context.WithCancel(context.WithoutCancel(ctx))
	defer stopEffects()
	g.Go(func() error { return effects.Run(effectsCtx) })

	g.Go(func() error {
		logger.Info(ctx, "service_started",
			fmt.Sprintf("Dispatch service started on port %d", cfg.Server.Port),
			map[string]any{
				"port":             cfg.Server.Port,
				"max_concurrent":   cfg.Server.MaxConcurrent,
				"candidate_policy": cfg.Dispatch.CandidatePolicy,
				"presence_mirror":  mirror != nil,
			},
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Server.Port})
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)

		shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		stopEffects()
		return nil
	})

	g.Go(func() error { return sweeper.Run(gctx) })

	if mirror != nil {
		g.Go(func() error { return mirror.Run(gctx) })
	}

	err = g.Wait()
	logger.Info(ctx, "service_stopped", "Dispatch service stopped", nil)
	return err
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// Socket upgrades bypass it since they hold their request for the socket's lifetime.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gorillaws.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
