// Package main is the entry point for the docflow API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docflow/internal/config"
	"docflow/internal/domain/journal"
	v1 "docflow/internal/infrastructure/http/v1"
	"docflow/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting docflow server", "env", cfg.App.Env, "postgres", cfg.UsePostgres(), "redis", cfg.UseRedis())

	accounts, err := cfg.Accounts.Resolve()
	if err != nil {
		log.Fatalw("invalid accounts configuration", "error", err)
	}
	builder := journal.NewBuilder(accounts)

	// --- Storage ---
	var store *storage
	if cfg.UsePostgres() {
		store, err = newPostgresStorage(ctx, cfg, builder)
		if err != nil {
			log.Fatalw("failed to initialize postgres storage", "error", err)
		}
		log.Info("postgres storage initialized")
	} else {
		store, err = newMemoryStorage(ctx, cfg, builder)
		if err != nil {
			log.Fatalw("failed to initialize memory storage", "error", err)
		}
		log.Warn("no database configured, using in-memory storage")
	}
	defer store.Close()

	locker, err := newLocker(ctx, cfg, store)
	if err != nil {
		log.Fatalw("failed to initialize locker", "error", err)
	}

	guards, err := newGuards(cfg.Guards)
	if err != nil {
		log.Fatalw("failed to compile guards", "error", err)
	}
	log.Infow("guards compiled", "count", len(cfg.Guards))

	svc := newService(ctx, cfg, store, locker, guards)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Service:   svc,
		Logger:    log,
		Readiness: store.readiness,
		History:   store.history,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
