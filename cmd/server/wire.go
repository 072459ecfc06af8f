package main

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"docflow/internal/config"
	"docflow/internal/core/lock"
	corenumerator "docflow/internal/core/numerator"
	"docflow/internal/core/security"
	"docflow/internal/core/tx"
	"docflow/internal/domain"
	"docflow/internal/domain/allocation"
	"docflow/internal/domain/audit"
	"docflow/internal/domain/costing"
	"docflow/internal/domain/document"
	"docflow/internal/domain/fulfillment"
	"docflow/internal/domain/guard"
	"docflow/internal/domain/journal"
	"docflow/internal/domain/lifecycle"
	"docflow/internal/domain/masterdata"
	"docflow/internal/domain/tax"
	"docflow/internal/infrastructure/cache"
	"docflow/internal/infrastructure/http/v1/handlers"
	"docflow/internal/infrastructure/numerator"
	"docflow/internal/infrastructure/storage/memory"
	"docflow/internal/infrastructure/storage/postgres"
	"docflow/internal/infrastructure/storage/postgres/catalog_repo"
	"docflow/internal/infrastructure/storage/postgres/document_repo"
	"docflow/internal/infrastructure/storage/postgres/journal_repo"
	"docflow/internal/infrastructure/storage/postgres/register_repo"
	"docflow/pkg/logger"
)

// storage is the persistence side of the service graph.
type storage struct {
	repo        document.Repository
	costing     costing.Repository
	fulfillment fulfillment.Repository
	balances    allocation.Repository
	journal     journal.Poster
	masterData  masterdata.Provider
	numerator   corenumerator.Generator
	txManager   tx.Manager
	events      domain.EventPublisher
	audit       audit.Logger
	history     handlers.HistoryReader
	readiness   map[string]handlers.ReadinessCheck
	closers     []io.Closer
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newPostgresStorage(ctx context.Context, cfg *config.Config, builder *journal.Builder) (*storage, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	s := &storage{closers: []io.Closer{closerFunc(func() error { pool.Close(); return nil })}}

	if err := postgres.Migrate(ctx, pool); err != nil {
		s.Close()
		return nil, err
	}

	txm := postgres.NewTxManager(pool)
	catalog := catalog_repo.NewCatalogRepo(txm)
	if err := catalog.SeedTransactionTypes(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("seed transaction types: %w", err)
	}

	auditSvc, err := postgres.NewAuditService(txm)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.repo = document_repo.NewDocumentRepo(txm)
	s.costing = register_repo.NewCostingRepo(txm)
	s.fulfillment = register_repo.NewFulfillmentRepo(txm)
	s.balances = register_repo.NewBalanceRepo(txm)
	s.journal = journal_repo.NewPoster(txm, builder)
	s.masterData = catalog
	s.numerator = numerator.New(pool)
	s.txManager = txm
	s.events = postgres.NewOutboxPublisher(txm)
	s.audit = auditSvc
	s.history = auditSvc
	s.readiness = map[string]handlers.ReadinessCheck{"database": pool.Ready}
	return s, nil
}

// newMemoryStorage keeps everything in process. Development mode preloads
// the demo catalog so documents can be created straight away.
func newMemoryStorage(ctx context.Context, cfg *config.Config, builder *journal.Builder) (*storage, error) {
	catalog := memory.NewCatalog()
	if cfg.App.Env == "development" {
		if err := masterdata.DemoData().Load(ctx, catalog); err != nil {
			return nil, err
		}
		logger.Info(ctx, "demo catalog loaded")
	}
	return &storage{
		repo:        memory.NewDocumentRepo(),
		costing:     memory.NewCostingRepo(),
		fulfillment: memory.NewFulfillmentRepo(),
		balances:    memory.NewBalanceRepo(),
		journal:     memory.NewJournal(builder),
		masterData:  catalog,
		numerator:   numerator.NewMemorySequence(),
		txManager:   memory.NewTxManager(),
		events:      memory.NewOutbox(),
		audit:       memory.NewAuditTrail(),
		readiness:   map[string]handlers.ReadinessCheck{},
	}, nil
}

// newLocker picks the redis locker when configured, the in-process one otherwise.
func newLocker(ctx context.Context, cfg *config.Config, s *storage) (lock.Locker, error) {
	if !cfg.UseRedis() {
		return lock.NewKeyedLocker(cfg.Lock.Timeout), nil
	}

	client, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, client)
	s.readiness["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

	lockCfg := cache.DefaultRedisLockConfig()
	lockCfg.Timeout = cfg.Lock.Timeout
	if cfg.Redis.LockTTL > 0 {
		lockCfg.TTL = cfg.Redis.LockTTL
	}
	return cache.NewRedisLocker(redis.UniversalClient(client), lockCfg), nil
}

func newGuards(rules []guard.Rule) (*guard.Set, error) {
	set, err := guard.NewSet()
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if err := set.Add(r); err != nil {
			return nil, fmt.Errorf("guard %s/%s: %w", r.Kind, r.Action, err)
		}
	}
	return set, nil
}

func newService(ctx context.Context, cfg *config.Config, s *storage, locker lock.Locker, guards *guard.Set) *lifecycle.Service {
	var policy security.PostingPolicy = security.OpenPolicy{}
	if !cfg.Policy.ClosedUntil.IsZero() {
		policy = security.NewClosedPeriodPolicy(cfg.Policy.ClosedUntil)
		logger.Info(ctx, "closed period policy active", "closed_until", cfg.Policy.ClosedUntil)
	}

	numbering := cfg.Numbering
	return lifecycle.NewService(lifecycle.Config{
		Repo:       s.repo,
		Costing:    costing.NewEngine(s.costing, s.txManager),
		Tracker:    fulfillment.NewTracker(s.fulfillment),
		Reconciler: allocation.NewReconciler(s.balances, cfg.Allocation.Epsilon),
		Journal:    s.journal,
		MasterData: s.masterData,
		Numerator:  s.numerator,
		TxManager:  s.txManager,
		Locker:     locker,
		Tax:        tax.NewCalculator(cfg.Tax.Rate),
		Policy:     policy,
		Guards:     guards,
		Events:     s.events,
		Audit:      s.audit,
		NumberingOptions: &corenumerator.Options{
			Strategy: corenumerator.ParseStrategy(numbering.Strategy),
		},
		NumberingConfig: func(code string) corenumerator.Config {
			c := corenumerator.DefaultConfig(code)
			c.PadWidth = numbering.PadWidth
			c.IncludeYear = numbering.IncludeYear
			return c
		},
	})
}
