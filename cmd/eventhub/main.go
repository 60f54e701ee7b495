package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventhub/internal/api"
	"eventhub/internal/config"
	"eventhub/internal/logger"
	"eventhub/internal/models"
	"eventhub/internal/monitor"
	"eventhub/internal/observability"
	"eventhub/internal/ratelimit"
	"eventhub/internal/storage"
	"eventhub/internal/version"

	"github.com/redis/go-redis/v9"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file")
	writeExample = flag.String("write-example-config", "", "Write an example configuration file to this path and exit")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}
	if *writeExample != "" {
		if err := config.SaveExample(*writeExample); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ver := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	if err := run(cfg, ver); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *models.Config, ver version.Info) error {
	ctx := context.Background()

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, cfg.Environment, ver)
	if err != nil {
		return fmt.Errorf("initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize storage
	storageInstance, err := storage.NewFactory().Create(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer storageInstance.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStorage storage.Storage = storageInstance
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(storageInstance)
		if err != nil {
			return fmt.Errorf("instrument storage: %w", err)
		}
		activeStorage = instrumented
	}

	if err := seedBootstrapKey(ctx, activeStorage, cfg); err != nil {
		return err
	}

	handlerOpts := []api.HandlerOption{api.WithPublicBaseURL(cfg.Server.PublicBaseURL)}
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	if cfg.Monitor.Enabled {
		mon, err := monitor.New(cfg.Monitor, otelProvider.Meter("eventhub/monitor"), cfg.RateLimit.SweepInterval)
		if err != nil {
			return fmt.Errorf("initialize request monitor: %w", err)
		}
		defer mon.Close()
		handlerOpts = append(handlerOpts, api.WithMonitor(mon))
		routeOpts = append(routeOpts, api.WithRequestMonitor(mon.Middleware))
	}

	var limits api.Limits
	if cfg.RateLimit.Enabled {
		rules := config.NewLiveRules(cfg)
		store, sink, err := newRateLimiter(ctx, cfg, rules, otelProvider)
		if err != nil {
			return err
		}
		defer store.Close()

		service := ratelimit.NewService(store)
		limits = api.Limits{
			Registration: ratelimit.PublicRegistration(service, rules, sink, rules.Bypassed),
			ShortLinks:   ratelimit.ShortLinkCreation(service, rules, api.UserID, sink, rules.Bypassed),
		}
		slog.Info("Rate limiting enabled", "store", cfg.RateLimit.Store)
	}

	handlers := api.NewHandlers(activeStorage, handlerOpts...)
	router := api.SetupRoutes(handlers, cfg, limits, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "tls", cfg.Server.TLSEnabled)
		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}

	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// newRateLimiter builds the configured window store, instrumented with the
// provider's meter, and the sink receiving policy events.
func newRateLimiter(ctx context.Context, cfg *models.Config, rules *config.LiveRules, provider *observability.Provider) (ratelimit.Store, ratelimit.Sink, error) {
	rl := cfg.RateLimit
	meter := provider.Meter("eventhub/ratelimit")

	metricsSink, err := observability.NewRateLimitMetrics(meter)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limit metrics: %w", err)
	}
	sinks := ratelimit.MultiSink{metricsSink}

	var store ratelimit.Store
	switch rl.Store {
	case models.RateLimitStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     rl.Redis.Addr,
			Password: rl.Redis.Password,
			DB:       rl.Redis.DB,
			PoolSize: rl.Redis.PoolSize,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", rl.Redis.Addr, err)
		}
		store = ratelimit.NewRedisStore(client, rl.Redis.KeyPrefix)
		if rl.Stats.Enabled {
			sinks = append(sinks, ratelimit.NewRedisStatsSink(client, rl.Redis.KeyPrefix, rl.Stats.TTL))
		}
	default:
		store = ratelimit.NewMemoryStore(
			ratelimit.WithSweepInterval(rl.SweepInterval),
			ratelimit.WithIdleTTLFunc(rules.LargestWindow),
		)
	}

	instrumented, err := observability.NewInstrumentedStore(store, rl.Store, meter)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("instrument rate limit store: %w", err)
	}
	return instrumented, sinks, nil
}

// seedBootstrapKey inserts the configured bootstrap key into storage if it
// does not already exist. It is a no-op when BootstrapKey is empty.
func seedBootstrapKey(ctx context.Context, store storage.Storage, cfg *models.Config) error {
	raw := cfg.Security.BootstrapKey
	if raw == "" {
		return nil
	}
	key := models.NewAPIKey("bootstrap", "bootstrap", raw, []string{models.PermissionAdmin})
	if err := store.CreateAPIKey(ctx, key); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Already seeded.
			return nil
		}
		return fmt.Errorf("seed bootstrap key: %w", err)
	}
	slog.Info("bootstrap API key seeded", "id", key.ID, "prefix", key.Prefix)
	return nil
}
