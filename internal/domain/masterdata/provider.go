// Package masterdata defines the read-only reference data the engine consumes.
package masterdata

import (
	"context"

	"docflow/internal/core/id"
)

// PartnerRole tells whether a partner may act as customer, supplier or both.
type PartnerRole string

const (
	RoleCustomer PartnerRole = "customer"
	RoleSupplier PartnerRole = "supplier"
	RoleBoth     PartnerRole = "both"
)

// Partner is a customer or supplier.
type Partner struct {
	ID   id.ID       `db:"id" json:"id"`
	Code string      `db:"code" json:"code"`
	Name string      `db:"name" json:"name"`
	Role PartnerRole `db:"role" json:"role"`
}

// Acts reports whether the partner can play role r.
func (p Partner) Acts(r PartnerRole) bool {
	return p.Role == RoleBoth || p.Role == r
}

// Item is a product or service.
type Item struct {
	ID      id.ID  `db:"id" json:"id"`
	Code    string `db:"code" json:"code"`
	Name    string `db:"name" json:"name"`
	Stocked bool   `db:"stocked" json:"stocked"`
}

// Location is a warehouse or storage location.
type Location struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// Account is a chart-of-accounts entry.
type Account struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// TransactionType keys the numbering sequence of a document.
type TransactionType struct {
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// Provider fetches reference data. Implementations return
// apperror NotFound for unknown references.
type Provider interface {
	Partner(ctx context.Context, partnerID id.ID) (Partner, error)
	Item(ctx context.Context, itemID id.ID) (Item, error)
	Location(ctx context.Context, locationID id.ID) (Location, error)
	Account(ctx context.Context, accountID id.ID) (Account, error)
	TransactionType(ctx context.Context, code string) (TransactionType, error)
}
