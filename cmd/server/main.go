/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, optional .env, environment)
  2. Build the zap logger
  3. Open the configured store (memory, sqlite or redis)
  4. Subscribe the live view to the store's change feed
  5. Create API handler, router and report scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -env     Optional .env file merged under the environment (default: .env)
  -port    Overrides PORT
  -db      Overrides DB_PATH (sqlite backend)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the report scheduler and the view subscription
  4. Close the store
  5. Exit

EXAMPLES:
  # SQLite file database
  DB_PATH=./data/ledger.db ./server

  # In-memory store with demo data loaded via the API
  STORE_BACKEND=memory ./server

  # Redis, MM-DD-YYYY dates, Sunday weeks
  STORE_BACKEND=redis REDIS_ADDR=localhost:6379 DATE_ORDER=MDY WEEK_START=Sunday ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/billing-ledger/api"
	"github.com/warp/billing-ledger/config"
	"github.com/warp/billing-ledger/ledger"
	memstore "github.com/warp/billing-ledger/ledger/store"
	redisstore "github.com/warp/billing-ledger/store/redis"
	"github.com/warp/billing-ledger/store/sqlite"
)

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	flag.Parse()

	v := config.NewViper()
	if _, err := os.Stat(*envFile); err == nil {
		if err := config.ReadEnvFile(v, *envFile); err != nil {
			log.Fatalf("Failed to read %s: %v", *envFile, err)
		}
	}
	if *port != 0 {
		v.Set("port", *port)
	}
	if *dbPath != "" {
		v.Set("store.db_path", *dbPath)
	}

	cfg, err := config.Load(v)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, closer, err := openStore(cfg)
	if err != nil {
		zap.S().Fatalw("failed to open store", "backend", cfg.StoreBackend, "error", err)
	}
	defer closer.Close()

	// Live view fed by the store
	view := ledger.NewView(cfg.Normalizer(), cfg.Reporter())
	if err := view.Start(context.Background(), store); err != nil {
		zap.S().Fatalw("failed to subscribe to store", "error", err)
	}
	defer view.Stop()

	svc := ledger.NewService(store, cfg.Normalizer())
	handler := api.NewHandler(store, svc, view)

	if handler.Scheduler != nil {
		handler.Scheduler.Location = cfg.Location
		if err := handler.Scheduler.Start(cfg.ReportSchedule); err != nil {
			zap.S().Fatalw("failed to start report scheduler", "error", err)
		}
		defer handler.Scheduler.Stop()
	}

	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zap.S().Infow("server starting",
			"addr", server.Addr,
			"backend", cfg.StoreBackend,
			"date_order", cfg.DateOrder,
			"week_start", cfg.WeekStart.String(),
			"timezone", cfg.Location.String(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalw("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.S().Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zap.S().Errorw("server forced to shutdown", "error", err)
	}

	zap.S().Info("server stopped")
}

// openStore builds the configured backend. The closer releases its
// connections on shutdown.
func openStore(cfg config.Config) (ledger.DocumentStore, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memstore.NewMemory(), nopCloser{}, nil

	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rdb, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(rdb, cfg.RedisPrefix), rdb, nil

	default:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
