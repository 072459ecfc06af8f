package masterdata_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/domain/masterdata"
	"docflow/internal/infrastructure/storage/memory"
)

type failingWriter struct {
	*memory.Catalog
}

func (failingWriter) SaveItem(ctx context.Context, i masterdata.Item) error {
	return errors.New("disk full")
}

func TestDemoData_Load(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewCatalog()
	data := masterdata.DemoData()

	require.NoError(t, data.Load(ctx, catalog))

	widget, err := catalog.Item(ctx, masterdata.DemoID("WIDGET"))
	require.NoError(t, err)
	assert.True(t, widget.Stocked)

	partner, err := catalog.Partner(ctx, masterdata.DemoID("P001"))
	require.NoError(t, err)
	assert.True(t, partner.Acts(masterdata.RoleCustomer))
	assert.True(t, partner.Acts(masterdata.RoleSupplier))

	// Reloading is an upsert.
	require.NoError(t, data.Load(ctx, catalog))
}

func TestDataset_LoadStopsOnError(t *testing.T) {
	err := masterdata.DemoData().Load(context.Background(), failingWriter{memory.NewCatalog()})
	assert.ErrorContains(t, err, "item WIDGET")
}

func TestDemoID_Stable(t *testing.T) {
	assert.Equal(t, masterdata.DemoID("WH1"), masterdata.DemoID("WH1"))
	assert.NotEqual(t, masterdata.DemoID("WH1"), masterdata.DemoID("WH2"))
}
