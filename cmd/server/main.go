package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopapp/backend/internal/cache"
	"shopapp/backend/internal/config"
	"shopapp/backend/internal/httpapi"
	"shopapp/backend/internal/payments"
	"shopapp/backend/internal/service"
	"shopapp/backend/internal/store"
	"shopapp/backend/internal/store/memory"
	pgstore "shopapp/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	orderCache := cache.OrderCache(cache.NoopOrderCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisOrderCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			orderCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("order cache: redis")
		}
	} else {
		log.Println("order cache: noop")
	}

	var gateway payments.Gateway = payments.Disabled{}
	if cfg.StripeSecret != "" {
		gateway = payments.NewStripeGateway(cfg.StripeSecret, cfg.PaymentLookupTimeout)
		log.Println("payments: stripe")
	} else {
		log.Println("payments: disabled (STRIPE_SECRET not set); checkout runs in degraded mode")
	}
	if cfg.StripeWebhookSecret == "" {
		log.Println("payments: STRIPE_WEBHOOK_SECRET not set; webhook endpoint will refuse deliveries")
	}

	svc := service.New(repo, gateway, orderCache, cfg.Currency, time.Duration(cfg.OrderCacheTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, cfg.StripeWebhookSecret)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("shop backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.StripeWebhookSecret != "" && cfg.StripeSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is set but STRIPE_SECRET is not")
	}
	return nil
}
