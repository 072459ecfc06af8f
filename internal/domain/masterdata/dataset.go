package masterdata

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"docflow/internal/core/id"
)

// Writer persists reference data. Saves are upserts keyed by id.
type Writer interface {
	SavePartner(ctx context.Context, p Partner) error
	SaveItem(ctx context.Context, i Item) error
	SaveLocation(ctx context.Context, l Location) error
	SaveAccount(ctx context.Context, a Account) error
}

// Dataset is a batch of reference data loaded in one go.
type Dataset struct {
	Partners  []Partner
	Items     []Item
	Locations []Location
	Accounts  []Account
}

// Load writes every record of d, stopping at the first failure.
func (d Dataset) Load(ctx context.Context, w Writer) error {
	for _, p := range d.Partners {
		if err := w.SavePartner(ctx, p); err != nil {
			return fmt.Errorf("partner %s: %w", p.Code, err)
		}
	}
	for _, i := range d.Items {
		if err := w.SaveItem(ctx, i); err != nil {
			return fmt.Errorf("item %s: %w", i.Code, err)
		}
	}
	for _, l := range d.Locations {
		if err := w.SaveLocation(ctx, l); err != nil {
			return fmt.Errorf("location %s: %w", l.Code, err)
		}
	}
	for _, a := range d.Accounts {
		if err := w.SaveAccount(ctx, a); err != nil {
			return fmt.Errorf("account %s: %w", a.Code, err)
		}
	}
	return nil
}

var demoNamespace = uuid.MustParse("b3c5e0a8-71d2-4f0e-8c6a-2f9d4e1a7b55")

// DemoID derives a stable id from a record code so reseeding is idempotent.
func DemoID(code string) id.ID {
	return uuid.NewSHA1(demoNamespace, []byte(code))
}

// DemoData is a small trading company: two partners each way, a few stocked
// items and one service, two warehouses and an adjustment account.
func DemoData() Dataset {
	partner := func(code, name string, role PartnerRole) Partner {
		return Partner{ID: DemoID(code), Code: code, Name: name, Role: role}
	}
	item := func(code, name string, stocked bool) Item {
		return Item{ID: DemoID(code), Code: code, Name: name, Stocked: stocked}
	}
	return Dataset{
		Partners: []Partner{
			partner("C001", "Northwind Retail", RoleCustomer),
			partner("C002", "Contoso Stores", RoleCustomer),
			partner("S001", "Acme Components", RoleSupplier),
			partner("P001", "Globex Trading", RoleBoth),
		},
		Items: []Item{
			item("WIDGET", "Widget", true),
			item("GADGET", "Gadget", true),
			item("SPROCKET", "Sprocket", true),
			item("FREIGHT", "Freight service", false),
		},
		Locations: []Location{
			{ID: DemoID("WH1"), Code: "WH1", Name: "Main warehouse"},
			{ID: DemoID("WH2"), Code: "WH2", Name: "Overflow warehouse"},
		},
		Accounts: []Account{
			{ID: DemoID("7100"), Code: "7100", Name: "Inventory adjustments"},
		},
	}
}
