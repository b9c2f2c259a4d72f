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

	"bengkelinaja/internal/cache"
	"bengkelinaja/internal/config"
	"bengkelinaja/internal/httpapi"
	"bengkelinaja/internal/service"
	"bengkelinaja/internal/store"
	"bengkelinaja/internal/store/memory"
	pgstore "bengkelinaja/internal/store/postgres"
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
		} else {
			repo = pg
			closers = append(closers, pg.Close)
			log.Println("repository: postgres")
		}
	} else {
		mem := memory.NewSeeded()
		seedDevUsers(mem)
		repo = mem
		log.Println("repository: in-memory")
	}

	cacheStore := cache.JobsheetCache(cache.NoopJobsheetCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisJobsheetCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, cacheStore, time.Duration(cfg.JobsheetCacheTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("workshop backend listening on %s", cfg.Address())
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

// seedDevUsers builds the initial accounts for dev/demo mode. Passwords
// come from SEED_ADMIN_PASSWORD, SEED_FRONTDESK_PASSWORD and
// SEED_MECHANIC_PASSWORD; hardcoded dev defaults are used when unset.
// These accounts are never created in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedDevUsers(mem *memory.Store) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	frontPwd := envOr("SEED_FRONTDESK_PASSWORD", "frontdesk123")
	mechPwd := envOr("SEED_MECHANIC_PASSWORD", "mechanic123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD to override.")
	}

	mem.MustSeedUser("admin", adminPwd, "admin")
	mem.MustSeedUser("frontdesk", frontPwd, "front_desk")
	mem.MustSeedUser("mechanic", mechPwd, "mechanic")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
