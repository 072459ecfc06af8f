package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/config"
	"docflow/internal/core/id"
	"docflow/internal/core/lock"
	"docflow/internal/core/types"
	"docflow/internal/domain/document"
	"docflow/internal/domain/guard"
	"docflow/internal/domain/journal"
	"docflow/internal/domain/masterdata"
)

func testConfig() *config.Config {
	return &config.Config{
		App:        config.AppConfig{Env: "development"},
		Lock:       config.LockConfig{Timeout: time.Second},
		Tax:        config.TaxConfig{Rate: types.MustMoney("0.11")},
		Allocation: config.AllocationConfig{Epsilon: types.MustMoney("0.01")},
		Numbering:  config.NumberingConfig{Strategy: "strict", PadWidth: 3, IncludeYear: false},
	}
}

func TestMemoryWiring_PostsReceiving(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	accounts, err := cfg.Accounts.Resolve()
	require.NoError(t, err)
	store, err := newMemoryStorage(ctx, cfg, journal.NewBuilder(accounts))
	require.NoError(t, err)
	defer store.Close()

	locker, err := newLocker(ctx, cfg, store)
	require.NoError(t, err)
	assert.IsType(t, &lock.KeyedLocker{}, locker)

	guards, err := newGuards(nil)
	require.NoError(t, err)
	svc := newService(ctx, cfg, store, locker, guards)

	doc, err := document.New(document.KindReceiving, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	doc.PartnerID = id.Ptr(masterdata.DemoID("S001"))
	doc.LocationID = id.Ptr(masterdata.DemoID("WH1"))
	doc.Lines = []document.Line{{
		ItemID:    id.Ptr(masterdata.DemoID("WIDGET")),
		Quantity:  types.NewQuantity(4),
		UnitPrice: types.MustMoney("25"),
	}}

	created, err := svc.Create(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "RCV-001", created.Number, "numbering follows config")

	_, err = svc.Post(ctx, created.ID)
	require.NoError(t, err)

	avg, err := svc.AverageCost(ctx, masterdata.DemoID("WIDGET"), masterdata.DemoID("WH1"))
	require.NoError(t, err)
	assert.True(t, avg.Equal(types.MustMoney("25")))
}

func TestNewGuards_RejectsUnknownKind(t *testing.T) {
	_, err := newGuards([]guard.Rule{{
		Kind:       "Voucher",
		Action:     guard.ActionPost,
		Expression: "true",
	}})
	assert.Error(t, err)
}
