package catalog_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/id"
	"docflow/internal/domain/masterdata"
)

func TestGetQuery(t *testing.T) {
	repo := NewCatalogRepo(nil)

	sql, args, err := repo.partners.getQuery(id.New()).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, code, name, role FROM cat_partners WHERE id = $1", sql)
	assert.Len(t, args, 1)

	sql, args, err = repo.txTypes.getQuery("SO").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT code, name FROM cat_transaction_types WHERE code = $1", sql)
	assert.Equal(t, []any{"SO"}, args)
}

func TestUpsertQuery(t *testing.T) {
	repo := NewCatalogRepo(nil)
	item := masterdata.Item{ID: id.New(), Code: "W-1", Name: "Widget", Stocked: true}

	sql, args, err := repo.items.upsertQuery(item)
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO cat_items (id,code,name,stocked) VALUES ($1,$2,$3,$4) "+
			"ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name, stocked = EXCLUDED.stocked",
		sql)
	assert.Equal(t, []any{item.ID, "W-1", "Widget", true}, args)
}

func TestUpsertQuery_PartnerRoleColumn(t *testing.T) {
	repo := NewCatalogRepo(nil)
	p := masterdata.Partner{ID: id.New(), Code: "C-1", Name: "Acme", Role: masterdata.RoleCustomer}

	_, args, err := repo.partners.upsertQuery(p)
	require.NoError(t, err)
	require.Len(t, args, 4)
	assert.Equal(t, masterdata.RoleCustomer, args[3])
}
