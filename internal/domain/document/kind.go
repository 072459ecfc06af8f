package document

import (
	"fmt"
	"slices"

	"docflow/internal/core/apperror"
	"docflow/internal/core/entity"
	"docflow/internal/domain/tax"
)

// Kind identifies a concrete document type.
type Kind string

const (
	KindQuotation              Kind = "Quotation"
	KindSalesOrder             Kind = "SalesOrder"
	KindPurchaseOrder          Kind = "PurchaseOrder"
	KindReceiving              Kind = "Receiving"
	KindShipment               Kind = "Shipment"
	KindARInvoice              Kind = "ARInvoice"
	KindAPInvoice              Kind = "APInvoice"
	KindARDebitAdjustment      Kind = "ARDebitAdjustment"
	KindARCreditAdjustment     Kind = "ARCreditAdjustment"
	KindAPDebitAdjustment      Kind = "APDebitAdjustment"
	KindAPCreditAdjustment     Kind = "APCreditAdjustment"
	KindInventoryAdjustmentIn  Kind = "InventoryAdjustmentIn"
	KindInventoryAdjustmentOut Kind = "InventoryAdjustmentOut"
	KindItemConversion         Kind = "ItemConversion"
)

// Approval selects the state machine shape of a family.
type Approval int

const (
	// ThreeState is Draft → Approved → Posted.
	ThreeState Approval = iota
	// TwoState collapses approval into post: Draft → Posted.
	TwoState
)

// Party names which reference identifies the counterparty of a document.
type Party string

const (
	PartyCustomer Party = "customer"
	PartySupplier Party = "supplier"
	PartyLocation Party = "location"
)

// StockEffect describes what posting does to cost layers.
type StockEffect int

const (
	StockNone StockEffect = iota
	StockIn
	StockOut
	StockConversion
)

// Profile is the family configuration of a kind. The lifecycle engine
// reads it instead of branching on concrete kinds.
type Profile struct {
	Kind     Kind
	Approval Approval
	Party    Party

	StockEffect StockEffect

	// SourceKinds lists the kinds this one may be derived from.
	SourceKinds []Kind

	// Tracked documents register fulfillment counters when posted,
	// so that children can be derived from them.
	Tracked bool

	// AutoClose moves a tracked source to Closed once every line is fulfilled.
	AutoClose bool

	// Invoice documents open an outstanding balance when posted.
	Invoice bool

	// Allocatable documents may distribute their total over open invoices
	// of AllocatesAgainst.
	Allocatable      bool
	AllocatesAgainst Kind

	RequiresCounterAccount bool

	DefaultTaxMode         tax.Mode
	DefaultTransactionType string
}

// RequiresLocation reports whether lines move stock and a location is needed.
func (p Profile) RequiresLocation() bool {
	return p.StockEffect != StockNone
}

// CanDeriveFrom reports whether src is an allowed source kind.
func (p Profile) CanDeriveFrom(src Kind) bool {
	return slices.Contains(p.SourceKinds, src)
}

// UnpostTarget is the status a posted document returns to.
func (p Profile) UnpostTarget() entity.Status {
	if p.Approval == TwoState {
		return entity.StatusDraft
	}
	return entity.StatusApproved
}

var profiles = map[Kind]Profile{
	KindQuotation: {
		Party: PartyCustomer, Tracked: true, AutoClose: true,
		DefaultTaxMode: tax.Exclude, DefaultTransactionType: "QT",
	},
	KindSalesOrder: {
		Party: PartyCustomer, SourceKinds: []Kind{KindQuotation}, Tracked: true, AutoClose: true,
		DefaultTaxMode: tax.Exclude, DefaultTransactionType: "SO",
	},
	KindPurchaseOrder: {
		Party: PartySupplier, Tracked: true, AutoClose: true,
		DefaultTaxMode: tax.Exclude, DefaultTransactionType: "PO",
	},
	KindReceiving: {
		Approval: TwoState, Party: PartySupplier, StockEffect: StockIn,
		SourceKinds: []Kind{KindPurchaseOrder}, Tracked: true,
		DefaultTaxMode: tax.NoTax, DefaultTransactionType: "RCV",
	},
	KindShipment: {
		Approval: TwoState, Party: PartyCustomer, StockEffect: StockOut,
		SourceKinds: []Kind{KindSalesOrder}, Tracked: true,
		DefaultTaxMode: tax.NoTax, DefaultTransactionType: "SHP",
	},
	KindARInvoice: {
		Party: PartyCustomer, SourceKinds: []Kind{KindShipment}, Invoice: true,
		DefaultTaxMode: tax.Exclude, DefaultTransactionType: "ARI",
	},
	KindAPInvoice: {
		Party: PartySupplier, SourceKinds: []Kind{KindReceiving}, Invoice: true,
		DefaultTaxMode: tax.Exclude, DefaultTransactionType: "API",
	},
	KindARDebitAdjustment: {
		Party: PartyCustomer, RequiresCounterAccount: true,
		DefaultTaxMode: tax.NoTax, DefaultTransactionType: "ARD",
	},
	KindARCreditAdjustment: {
		Party: PartyCustomer, RequiresCounterAccount: true,
		Allocatable: true, AllocatesAgainst: KindARInvoice,
		DefaultTaxMode: tax.NoTax, DefaultTransactionType: "ARC",
	},
	KindAPDebitAdjustment: {
		Party: PartySupplier, RequiresCounterAccount: true,
		Allocatable: true, AllocatesAgainst: KindAPInvoice,
		DefaultTaxMode: tax.NoTax, DefaultTransactionType: "APD",
	},
	KindAPCreditAdjustment: {
		Party: PartySupplier, RequiresCounterAccount: true,
		DefaultTaxMode: tax.NoTax, DefaultTransactionType: "APC",
	},
	KindInventoryAdjustmentIn: {
		Approval: TwoState, Party: PartyLocation, StockEffect: StockIn, RequiresCounterAccount: true,
		DefaultTaxMode: tax.NoTax, DefaultTransactionType: "IAI",
	},
	KindInventoryAdjustmentOut: {
		Approval: TwoState, Party: PartyLocation, StockEffect: StockOut, RequiresCounterAccount: true,
		DefaultTaxMode: tax.NoTax, DefaultTransactionType: "IAO",
	},
	KindItemConversion: {
		Approval: TwoState, Party: PartyLocation, StockEffect: StockConversion, RequiresCounterAccount: true,
		DefaultTaxMode: tax.NoTax, DefaultTransactionType: "ICV",
	},
}

func init() {
	for k, p := range profiles {
		p.Kind = k
		profiles[k] = p
	}
}

// ProfileOf returns the family configuration of kind.
func ProfileOf(kind Kind) (Profile, error) {
	p, ok := profiles[kind]
	if !ok {
		return Profile{}, apperror.NewFieldValidation("kind", fmt.Sprintf("unknown document kind %q", kind))
	}
	return p, nil
}

// Kinds returns all registered kinds in stable order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(profiles))
	for k := range profiles {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// ChildKinds returns the kinds that may be derived from src.
func ChildKinds(src Kind) []Kind {
	var out []Kind
	for _, k := range Kinds() {
		if profiles[k].CanDeriveFrom(src) {
			out = append(out, k)
		}
	}
	return out
}
