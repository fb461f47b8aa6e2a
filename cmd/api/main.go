package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"saylau.org/internal/audit"
	"saylau.org/internal/ballot"
	"saylau.org/internal/httpapi"
	"saylau.org/internal/obs"
	"saylau.org/internal/store/pg"
	"saylau.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	if os.Getenv("SAYLAU_AUTH_SECRET") == "" {
		log.Fatal("SAYLAU_AUTH_SECRET is required")
	}

	dsn := os.Getenv("SAYLAU_PG_DSN")
	if dsn == "" {
		log.Fatal("SAYLAU_PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := pg.New(db)

	votes := ballot.NewService(store, store, store)
	results := ballot.NewAggregator(store, store, store)
	feed := stream.NewFeed(results, stream.DefaultInterval)
	recorder := audit.NewRecorder(store)

	api := httpapi.New(httpapi.Config{
		Catalog:    store,
		Roster:     store,
		Votes:      votes,
		Results:    results,
		Feed:       feed,
		Recorder:   recorder,
		Probe:      httpapi.ReadyProbe{DB: db},
		Version:    version,
		SessionTTL: envDuration("SAYLAU_SESSION_TTL", httpapi.DefaultSessionTTL),
		RateBurst:  envInt("SAYLAU_RATE_BURST", 50),
		RatePerSec: envInt("SAYLAU_RATE_PER_SEC", 25),
	})

	addr := os.Getenv("SAYLAU_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting saylau-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	api.Close()
	_ = db.Close()
	log.Println("Stopped")
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Fatalf("%s must be a positive integer, got %q", name, raw)
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		log.Fatalf("%s must be a positive duration, got %q", name, raw)
	}
	return v
}
