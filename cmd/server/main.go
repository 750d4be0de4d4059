/*
main.go - Application entry point

PURPOSE:
  Starts the estate billing service: SQLite store, batch orchestrator,
  HTTP trigger surface, and the monthly cron scheduler.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse flags
  2. Load YAML config with env overrides
  3. Open SQLite store (auto-migrates schema)
  4. Wire orchestrator, handler, scheduler
  5. Serve HTTP with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config path (default: billing.yaml; missing file = defaults)
  -port    Override HTTP port
  -db      Override SQLite path; ":memory:" for in-memory

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop the scheduler, stop accepting connections, wait
  up to 30s for in-flight requests, close the store.

SEE ALSO:
  - api/server.go: router configuration
  - config/config.go: configuration shape
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/config"
	"github.com/warp/billing-engine/store/sqlite"
)

func main() {
	// .env is optional; real env vars win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	configPath := flag.String("config", "billing.yaml", "YAML config path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	engine := &billing.Orchestrator{
		Properties:  store,
		Occupancies: store,
		Profiles:    store,
		Invoices:    store,
		Settings:    &billing.Settings{Store: store},
		Wallet:      store,
		Runs:        store,
		Budget:      cfg.BatchBudget(),
	}

	handler := api.NewHandler(engine, store, store)
	engine.Cache = handler

	scheduler := api.NewScheduler(engine, cfg.Scheduler)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	// The manual generate endpoint can legitimately run for minutes on a
	// large estate; the batch budget, not the write timeout, bounds it.
	var writeTimeout time.Duration
	if b := cfg.BatchBudget(); b > 0 {
		writeTimeout = b + time.Minute
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Billing engine listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
