package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/wanderlane/pricing-engine/internal/audit"
	"github.com/wanderlane/pricing-engine/internal/config"
	"github.com/wanderlane/pricing-engine/internal/httpserver"
	"github.com/wanderlane/pricing-engine/internal/pricing"
	"github.com/wanderlane/pricing-engine/internal/service"
	"github.com/wanderlane/pricing-engine/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	st := store.NewPGStore(db)

	var auditor service.Auditor
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := audit.NewPublisher(audit.PublisherConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("kafka publisher: %v", err)
		}
		defer publisher.Close()
		auditor = publisher
	}

	var archiver service.Archiver
	if cfg.SnapshotBucket != "" {
		s3Archiver, err := audit.NewS3Archiver(context.Background(), cfg.SnapshotBucket, cfg.SnapshotPrefix)
		if err != nil {
			log.Fatalf("s3 archiver: %v", err)
		}
		archiver = s3Archiver
	}

	if cfg.AdminJWTSecret == "" {
		log.Printf("WARNING: PRICING_ADMIN_JWT_SECRET not set, admin routes are unauthenticated")
	}

	calc := pricing.NewCalculator(st, cfg.StoreTimeout)
	admin := service.New(st, auditor, archiver)
	server := httpserver.New(calc, admin, st, cfg.AdminJWTSecret)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("Pricing service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, cfg.ShutdownTimeout)
}

func waitForShutdown(srv *http.Server, timeout time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
