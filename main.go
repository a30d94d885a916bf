package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workflowgate/internal/config"
	"workflowgate/internal/db"
	"workflowgate/internal/entitlement"
	"workflowgate/internal/generator"
	httpapi "workflowgate/internal/http"
	"workflowgate/internal/payments"
	"workflowgate/internal/services"

	"github.com/joho/godotenv"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("load .env failed: %v", err)
		}
	} else if err != nil && !os.IsNotExist(err) {
		log.Printf("stat .env failed: %v", err)
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	store := entitlement.NewStore(pool)
	gen := generator.New(cfg.GeneratorBaseURL, cfg.GeneratorTimeout())
	if !gen.IsConfigured() {
		log.Printf("[INFO] generation backend URL not set, /api/generate will fail")
	}
	pay := payments.New(cfg.StripeSecretKey, cfg.StripeCurrency, cfg.StripeTimeout())
	if !pay.IsConfigured() {
		log.Printf("[INFO] stripe not configured, checkout and cancellation disabled")
	}

	svc := services.New(store, gen, pay, cfg)

	// Expired rate-limit windows accumulate one row per user per active
	// minute; sweep them hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				before := time.Now().UTC().Add(-time.Hour)
				if err := store.CleanupRequestWindows(ctx, before); err != nil {
					log.Printf("[ERROR] request window cleanup failed: %v", err)
				}
			}
		}
	}()

	server := httpapi.NewServer(svc, cfg)
	httpServer := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: server.Routes(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.ServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
