// Package main provides a CLI tool for seeding the database with reference data.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"docflow/internal/config"
	"docflow/internal/domain/masterdata"
	"docflow/internal/infrastructure/storage/postgres"
	"docflow/internal/infrastructure/storage/postgres/catalog_repo"
	"docflow/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: search ./config.yaml)")
	demo := flag.Bool("demo", false, "also load demo partners, items and locations")
	flag.Parse()

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	var cfg *config.Config
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}
	if !cfg.UsePostgres() {
		log.Fatal("database.dsn is required")
	}

	ctx := logger.WithLogger(context.Background(), log)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalw("failed to apply schema", "error", err)
	}

	txm := postgres.NewTxManager(pool)
	repo := catalog_repo.NewCatalogRepo(txm)

	if err := repo.SeedTransactionTypes(ctx); err != nil {
		log.Fatalw("failed to seed transaction types", "error", err)
	}

	data, err := ledgerAccounts(cfg.Accounts)
	if err != nil {
		log.Fatalw("invalid accounts configuration", "error", err)
	}
	if *demo {
		demoData := masterdata.DemoData()
		demoData.Accounts = append(demoData.Accounts, data.Accounts...)
		data = demoData
	}

	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return data.Load(ctx, repo)
	})
	if err != nil {
		log.Fatalw("failed to seed reference data", "error", err)
	}

	log.Infow("seeding completed successfully",
		"partners", len(data.Partners),
		"items", len(data.Items),
		"locations", len(data.Locations),
		"accounts", len(data.Accounts),
	)
}

// ledgerAccounts registers the journal accounts from config in the chart of
// accounts so they can be browsed and referenced.
func ledgerAccounts(cfg config.AccountsConfig) (masterdata.Dataset, error) {
	a, err := cfg.Resolve()
	if err != nil {
		return masterdata.Dataset{}, err
	}
	return masterdata.Dataset{Accounts: []masterdata.Account{
		{ID: a.Inventory, Code: "1300", Name: "Inventory"},
		{ID: a.Receivable, Code: "1200", Name: "Accounts receivable"},
		{ID: a.TaxInput, Code: "1400", Name: "Input VAT"},
		{ID: a.Clearing, Code: "1900", Name: "Goods received not invoiced"},
		{ID: a.Payable, Code: "2100", Name: "Accounts payable"},
		{ID: a.TaxOutput, Code: "2200", Name: "Output VAT"},
		{ID: a.Revenue, Code: "4000", Name: "Sales revenue"},
		{ID: a.COGS, Code: "5000", Name: "Cost of goods sold"},
	}}, nil
}
