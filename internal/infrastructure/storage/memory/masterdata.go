package memory

import (
	"context"
	"sync"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/domain/document"
	"docflow/internal/domain/masterdata"
)

var (
	_ masterdata.Provider = (*Catalog)(nil)
	_ masterdata.Writer   = (*Catalog)(nil)
)

// Catalog is a seedable in-memory master-data provider.
type Catalog struct {
	mu        sync.RWMutex
	partners  map[id.ID]masterdata.Partner
	items     map[id.ID]masterdata.Item
	locations map[id.ID]masterdata.Location
	accounts  map[id.ID]masterdata.Account
	txTypes   map[string]masterdata.TransactionType

	// Err, when set, is returned by every lookup.
	Err error
}

// NewCatalog creates a catalog pre-seeded with the default transaction
// type of every document kind.
func NewCatalog() *Catalog {
	c := &Catalog{
		partners:  make(map[id.ID]masterdata.Partner),
		items:     make(map[id.ID]masterdata.Item),
		locations: make(map[id.ID]masterdata.Location),
		accounts:  make(map[id.ID]masterdata.Account),
		txTypes:   make(map[string]masterdata.TransactionType),
	}
	for _, k := range document.Kinds() {
		p, _ := document.ProfileOf(k)
		c.AddTransactionType(masterdata.TransactionType{Code: p.DefaultTransactionType, Name: string(k)})
	}
	return c
}

func (c *Catalog) AddPartner(p masterdata.Partner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partners[p.ID] = p
}

func (c *Catalog) AddItem(i masterdata.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[i.ID] = i
}

func (c *Catalog) AddLocation(l masterdata.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations[l.ID] = l
}

func (c *Catalog) AddAccount(a masterdata.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[a.ID] = a
}

func (c *Catalog) AddTransactionType(t masterdata.TransactionType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txTypes[t.Code] = t
}

func (c *Catalog) SavePartner(ctx context.Context, p masterdata.Partner) error {
	c.AddPartner(p)
	return nil
}

func (c *Catalog) SaveItem(ctx context.Context, i masterdata.Item) error {
	c.AddItem(i)
	return nil
}

func (c *Catalog) SaveLocation(ctx context.Context, l masterdata.Location) error {
	c.AddLocation(l)
	return nil
}

func (c *Catalog) SaveAccount(ctx context.Context, a masterdata.Account) error {
	c.AddAccount(a)
	return nil
}

func (c *Catalog) Partner(ctx context.Context, partnerID id.ID) (masterdata.Partner, error) {
	return lookup(c, c.partners, partnerID, "partner")
}

func (c *Catalog) Item(ctx context.Context, itemID id.ID) (masterdata.Item, error) {
	return lookup(c, c.items, itemID, "item")
}

func (c *Catalog) Location(ctx context.Context, locationID id.ID) (masterdata.Location, error) {
	return lookup(c, c.locations, locationID, "location")
}

func (c *Catalog) Account(ctx context.Context, accountID id.ID) (masterdata.Account, error) {
	return lookup(c, c.accounts, accountID, "account")
}

func (c *Catalog) TransactionType(ctx context.Context, code string) (masterdata.TransactionType, error) {
	return lookup(c, c.txTypes, code, "transaction_type")
}

func lookup[K comparable, V any](c *Catalog, m map[K]V, key K, entity string) (V, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero V
	if c.Err != nil {
		return zero, c.Err
	}
	v, ok := m[key]
	if !ok {
		return zero, apperror.NewNotFound(entity, key)
	}
	return v, nil
}
