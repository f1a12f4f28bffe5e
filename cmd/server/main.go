/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the profit store API.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (.env file, then environment)
  3. Initialize SQLite store (fatal if unreachable)
  4. Create API handler and router
  5. Start server with graceful shutdown
  A listen failure returns from run, so the store is closed before exit.

COMMAND-LINE FLAGS:
  -env-file  .env file to load (default: .env, missing file is ignored)
  -port      HTTP port, overrides PORT

ENVIRONMENT:
  See config/config.go. DATABASE_URL is required.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  DATABASE_URL=./data/profit.db ./server
  DATABASE_URL=":memory:" ./server -port=3000
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

	"github.com/sirupsen/logrus"
	"github.com/warp/profit-engine/api"
	"github.com/warp/profit-engine/config"
	"github.com/warp/profit-engine/logging"
	"github.com/warp/profit-engine/store/sqlite"
)

func main() {
	// Flags
	envFile := flag.String("env-file", ".env", "dotenv file to load before reading the environment")
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	if *port > 0 {
		cfg.Port = *port
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if err := run(cfg, log, quit); err != nil {
		log.WithError(err).Fatal("server failed")
	}
	log.Info("server stopped")
}

// run opens the store and serves until stop fires or the listener fails.
// The store is closed before run returns on every path.
func run(cfg config.Config, log *logrus.Logger, stop <-chan os.Signal) error {
	store, err := sqlite.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()
	log.Info("connected to database")

	handler := api.NewHandler(store, log)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr()).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	case <-stop:
	}

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	return nil
}
