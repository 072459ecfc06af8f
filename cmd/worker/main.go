// Package main is the entry point for the docflow background worker.
// It relays domain events from the transactional outbox and prunes
// delivered messages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"docflow/internal/config"
	"docflow/internal/infrastructure/storage/postgres"
	"docflow/pkg/logger"
)

// publishedRetention is how long delivered outbox rows are kept.
const publishedRetention = 7 * 24 * time.Hour

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

	if !cfg.UsePostgres() {
		log.Fatal("worker requires database.dsn")
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting docflow worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	worker := NewWorker(postgres.NewTxManager(pool), cfg.Outbox, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the outbox relay and periodic housekeeping.
type Worker struct {
	txManager *postgres.TxManager
	relay     *postgres.OutboxRelay
	interval  time.Duration
	log       *logger.Logger
}

func NewWorker(txManager *postgres.TxManager, cfg config.OutboxConfig, log *logger.Logger) *Worker {
	return &Worker{
		txManager: txManager,
		relay:     postgres.NewOutboxRelay(txManager, cfg.BatchSize, postgres.LogHandler),
		interval:  cfg.PollInterval,
		log:       log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.relay.Run(ctx, w.interval)
	}()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-cleanupTicker.C:
			w.cleanupPublished(ctx)
		}
	}
}

func (w *Worker) cleanupPublished(ctx context.Context) {
	result, err := w.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_outbox
		WHERE status = $1 AND published_at < $2
	`, postgres.OutboxStatusPublished, time.Now().UTC().Add(-publishedRetention))
	if err != nil {
		w.log.Warnw("outbox cleanup failed", "error", err)
		return
	}

	if result.RowsAffected() > 0 {
		w.log.Infow("cleaned up published outbox messages", "count", result.RowsAffected())
	}
}
