package register_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/costing"
	"docflow/internal/domain/document"
)

func TestListOpenQuery(t *testing.T) {
	repo := NewBalanceRepo(nil)
	partner := id.New()

	tests := []struct {
		name     string
		partner  *id.ID
		kind     document.Kind
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "all",
			wantSQL:  "SELECT invoice_id, kind, partner_id, number, date, total, outstanding, version FROM invoice_balances WHERE outstanding > $1 ORDER BY date, invoice_id",
			wantArgs: 1,
		},
		{
			name:     "partner and kind",
			partner:  &partner,
			kind:     document.KindARInvoice,
			wantSQL:  "SELECT invoice_id, kind, partner_id, number, date, total, outstanding, version FROM invoice_balances WHERE outstanding > $1 AND partner_id = $2 AND kind = $3 ORDER BY date, invoice_id",
			wantArgs: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.listOpenQuery(tt.partner, tt.kind).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestLayerQuery_ForUpdate(t *testing.T) {
	repo := NewCostingRepo(nil)
	key := costing.Key{ItemID: id.New(), LocationID: id.New()}

	sql, args, err := repo.layerQuery(key).Suffix("FOR UPDATE").ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT item_id, location_id, quantity, average_cost, version FROM cost_layers WHERE item_id = $1 AND location_id = $2 FOR UPDATE",
		sql)
	assert.Len(t, args, 2)
}

func TestMovementRows(t *testing.T) {
	m := costing.Movement{
		Seq:          7,
		RecorderID:   id.New(),
		RecorderKind: string(document.KindReceiving),
		LineID:       id.New(),
		ItemID:       id.New(),
		LocationID:   id.New(),
		Direction:    costing.In,
		Quantity:     types.NewQuantity(10),
		UnitCost:     types.MustMoney("100"),
		Period:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}

	rows := movementRows([]costing.Movement{m})
	require.Len(t, rows, 1)
	require.Len(t, rows[0], len(movementColumns))
	assert.Equal(t, int64(7), rows[0][0])
	assert.Equal(t, "in", rows[0][6])
	assert.Equal(t, int64(100_000), rows[0][7])
}
