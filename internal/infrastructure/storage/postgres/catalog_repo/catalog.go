package catalog_repo

import (
	"context"
	"fmt"

	"docflow/internal/core/id"
	"docflow/internal/domain/document"
	"docflow/internal/domain/masterdata"
	"docflow/internal/infrastructure/storage/postgres"
)

var (
	_ masterdata.Provider = (*CatalogRepo)(nil)
	_ masterdata.Writer   = (*CatalogRepo)(nil)
)

// CatalogRepo implements masterdata.Provider.
type CatalogRepo struct {
	partners  table[masterdata.Partner]
	items     table[masterdata.Item]
	locations table[masterdata.Location]
	accounts  table[masterdata.Account]
	txTypes   table[masterdata.TransactionType]
	txManager *postgres.TxManager
}

// NewCatalogRepo creates the master-data provider.
func NewCatalogRepo(txManager *postgres.TxManager) *CatalogRepo {
	return &CatalogRepo{
		partners:  newTable[masterdata.Partner](txManager, "cat_partners", "partner", "id", []string{"id", "code", "name", "role"}),
		items:     newTable[masterdata.Item](txManager, "cat_items", "item", "id", []string{"id", "code", "name", "stocked"}),
		locations: newTable[masterdata.Location](txManager, "cat_locations", "location", "id", []string{"id", "code", "name"}),
		accounts:  newTable[masterdata.Account](txManager, "cat_accounts", "account", "id", []string{"id", "code", "name"}),
		txTypes:   newTable[masterdata.TransactionType](txManager, "cat_transaction_types", "transaction_type", "code", []string{"code", "name"}),
		txManager: txManager,
	}
}

func (r *CatalogRepo) Partner(ctx context.Context, partnerID id.ID) (masterdata.Partner, error) {
	return r.partners.get(ctx, partnerID)
}

func (r *CatalogRepo) Item(ctx context.Context, itemID id.ID) (masterdata.Item, error) {
	return r.items.get(ctx, itemID)
}

func (r *CatalogRepo) Location(ctx context.Context, locationID id.ID) (masterdata.Location, error) {
	return r.locations.get(ctx, locationID)
}

func (r *CatalogRepo) Account(ctx context.Context, accountID id.ID) (masterdata.Account, error) {
	return r.accounts.get(ctx, accountID)
}

func (r *CatalogRepo) TransactionType(ctx context.Context, code string) (masterdata.TransactionType, error) {
	return r.txTypes.get(ctx, code)
}

func (r *CatalogRepo) SavePartner(ctx context.Context, p masterdata.Partner) error {
	return r.partners.upsert(ctx, p)
}

func (r *CatalogRepo) SaveItem(ctx context.Context, i masterdata.Item) error {
	return r.items.upsert(ctx, i)
}

func (r *CatalogRepo) SaveLocation(ctx context.Context, l masterdata.Location) error {
	return r.locations.upsert(ctx, l)
}

func (r *CatalogRepo) SaveAccount(ctx context.Context, a masterdata.Account) error {
	return r.accounts.upsert(ctx, a)
}

func (r *CatalogRepo) SaveTransactionType(ctx context.Context, t masterdata.TransactionType) error {
	return r.txTypes.upsert(ctx, t)
}

// SeedTransactionTypes registers the default transaction type of every
// document kind.
func (r *CatalogRepo) SeedTransactionTypes(ctx context.Context) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, k := range document.Kinds() {
			p, err := document.ProfileOf(k)
			if err != nil {
				return err
			}
			t := masterdata.TransactionType{Code: p.DefaultTransactionType, Name: string(k)}
			if err := r.txTypes.upsert(ctx, t); err != nil {
				return fmt.Errorf("seed %s: %w", k, err)
			}
		}
		return nil
	})
}
