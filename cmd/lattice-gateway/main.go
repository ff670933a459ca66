// lattice-gateway is a multi-tenant SQL gateway over a shared
// PostgreSQL cluster.
//
// It reads configuration from gateway.json in the working directory,
// connects to PostgreSQL, bootstraps the control-plane schema, and
// starts an HTTP server exposing the raw SQL endpoint, the structured
// row CRUD endpoints, session issuance, a live mutation event stream,
// and a small admin API.
//
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lattice-host/lattice-gateway/internal/account"
	"github.com/lattice-host/lattice-gateway/internal/apikey"
	"github.com/lattice-host/lattice-gateway/internal/auth"
	"github.com/lattice-host/lattice-gateway/internal/config"
	"github.com/lattice-host/lattice-gateway/internal/database"
	"github.com/lattice-host/lattice-gateway/internal/events"
	"github.com/lattice-host/lattice-gateway/internal/query"
	"github.com/lattice-host/lattice-gateway/internal/ratelimit"
	"github.com/lattice-host/lattice-gateway/internal/registry"
	"github.com/lattice-host/lattice-gateway/internal/rows"
	"github.com/lattice-host/lattice-gateway/internal/server"
	"github.com/lattice-host/lattice-gateway/internal/tenant"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("lattice-gateway starting...")

	// Load configuration.
	cfg, err := config.Load("gateway.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (listen=%s db=%s/%s)", cfg.ListenAddr, cfg.DBConn, cfg.DBName)

	// Root context cancelled on SIGINT or SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down...", sig)
		cancel()
	}()

	// Connect to PostgreSQL and bootstrap the control-plane schema.
	db, err := database.Open(ctx, cfg.ConnString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected, schema bootstrapped")

	// Stores.
	accounts := account.NewStore(db)
	keys := apikey.NewStore(db)
	projects := tenant.NewStore(db)
	tables := registry.NewStore(db)
	hooks := events.NewRegistry(db)

	// Request pipeline.
	sessions := auth.NewSessionManager(cfg.SessionSecret, "lattice-gateway")
	verifier := auth.NewVerifier(cfg.AdminSecret, sessions, keys, accounts)
	resolver := tenant.NewResolver(projects)
	limiter := ratelimit.New(
		cfg.RateLimitMax,
		time.Duration(cfg.RateLimitWindowSecs)*time.Second,
		time.Duration(cfg.RateLimitBlockSecs)*time.Second,
	)
	executor := query.NewExecutor(db, time.Duration(cfg.QueryTimeoutMs)*time.Millisecond)

	// Mutation event fan-out.
	notifier := events.NewManager(
		hooks,
		cfg.WebhookQueueSize,
		cfg.WebhookWorkers,
		time.Duration(cfg.WebhookTimeoutSecs)*time.Second,
	)
	defer notifier.Shutdown()

	// Start the HTTP server (blocks until context is cancelled).
	srv := server.New(cfg, server.Deps{
		DB:        db,
		Verifier:  verifier,
		Sessions:  sessions,
		Resolver:  resolver,
		Limiter:   limiter,
		Executor:  executor,
		Notifier:  notifier,
		Registry:  tables,
		Inspector: rows.NewInspector(db),
		Accounts:  accounts,
		Keys:      keys,
	})
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("lattice-gateway stopped")
}
