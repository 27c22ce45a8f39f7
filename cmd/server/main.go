/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the shop ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, config.toml, LEDGER_* environment)
  2. Apply command-line flag overrides
  3. Initialize logger and SQLite store
  4. Wire the refresh bus (in-process, or Redis when enabled)
  5. Start the balance refresher and the snapshot scheduler
  6. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides LEDGER_HTTP_PORT)
  -db      SQLite database path (overrides LEDGER_DATABASE_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, flush refresh signals, stop the refresher
  4. Close Redis and the database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Production: JWT auth, Redis fan-out between instances
  LEDGER_AUTH_ENABLED=true LEDGER_AUTH_JWT_SECRET=... \
  LEDGER_REDIS_ENABLED=true LEDGER_REDIS_ADDR=redis:6379 ./server

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/shop-ledger/api"
	"github.com/warp/shop-ledger/config"
	"github.com/warp/shop-ledger/ledger"
	"github.com/warp/shop-ledger/logger"
	"github.com/warp/shop-ledger/refresh"
	"github.com/warp/shop-ledger/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (0 keeps the configured port)")
	dbPath := flag.String("db", "", "SQLite database path (empty keeps the configured path)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	// Refresh bus
	var bus refresh.Bus
	if cfg.Redis.Enabled {
		rb, err := refresh.NewRedisBus(ctx, refresh.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, log)
		if err != nil {
			return err
		}
		defer rb.Close()
		go func() {
			if err := rb.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("redis subscription stopped", zap.Error(err))
			}
		}()
		bus = rb
	} else {
		bus = refresh.NewLocalBus(log)
	}
	notifier := refresh.NewNotifier(bus, log.Named("notifier"))

	svc := ledger.NewService(store, ledger.WithLogger(log.Named("ledger")), ledger.WithNotifier(notifier))

	refresher := api.NewBalanceRefresher(svc, store, cfg.Refresh.Debounce, log)
	refresher.Attach(bus)

	var scheduler *api.SnapshotScheduler
	if cfg.Snapshot.Enabled {
		scheduler, err = api.NewSnapshotScheduler(svc, store, cfg.Snapshot.Cron, log)
		if err != nil {
			return err
		}
		scheduler.Start()
	}

	// Initialize handler
	handler, err := api.NewHandler(svc, store, loc, cfg.Display.Language)
	if err != nil {
		return fmt.Errorf("initialize handler: %w", err)
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		Auth: api.Authenticator{
			Enabled: cfg.Auth.Enabled,
			Secret:  []byte(cfg.Auth.JWTSecret),
			Issuer:  cfg.Auth.Issuer,
		},
		Log: log.Named("http"),
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.HTTP.Port),
			zap.String("env", cfg.App.Env),
			zap.String("database", cfg.Database.Path),
			zap.Bool("auth", cfg.Auth.Enabled),
			zap.Bool("redis", cfg.Redis.Enabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	notifier.Wait()
	refresher.Stop()

	log.Info("server stopped")
	return nil
}
