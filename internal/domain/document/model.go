// Package document provides the document model shared by every lifecycle family:
// header, lines, allocations and the derived monetary fields.
package document

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"docflow/internal/core/apperror"
	"docflow/internal/core/entity"
	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/tax"
)

// LineRole distinguishes conversion inputs from outputs.
type LineRole string

const (
	RoleNormal LineRole = "normal"
	RoleInput  LineRole = "input"
	RoleOutput LineRole = "output"
)

var hundred = decimal.NewFromInt(100)

// Document is a business transaction of any kind.
type Document struct {
	entity.Document

	Kind Kind `db:"kind" json:"kind"`

	// Exactly one of PartnerID/LocationID identifies the party; stock kinds
	// carry LocationID in addition to their partner.
	PartnerID  *id.ID `db:"partner_id" json:"partnerId,omitempty"`
	LocationID *id.ID `db:"location_id" json:"locationId,omitempty"`

	CounterAccountID *id.ID `db:"counter_account_id" json:"counterAccountId,omitempty"`

	// SourceDocumentID is a weak reference to the document this one was derived from.
	SourceDocumentID *id.ID `db:"source_document_id" json:"sourceDocumentId,omitempty"`

	TaxMode           tax.Mode `db:"tax_mode" json:"taxMode"`
	AllocateToInvoice bool     `db:"allocate_to_invoice" json:"allocateToInvoice"`

	// DistributeCost spreads total input cost over conversion outputs by quantity.
	DistributeCost bool `db:"distribute_cost" json:"distributeCost"`

	// Derived totals, recomputed on every mutation
	Subtotal   types.Money `db:"subtotal" json:"subtotal"`
	TaxBase    types.Money `db:"tax_base" json:"taxBase"`
	TaxAmount  types.Money `db:"tax_amount" json:"taxAmount"`
	GrandTotal types.Money `db:"grand_total" json:"grandTotal"`

	// JournalRef is returned by the journal collaborator on post
	JournalRef string `db:"journal_ref" json:"journalRef,omitempty"`

	Lines       []Line       `db:"-" json:"lines"`
	Allocations []Allocation `db:"-" json:"allocations,omitempty"`

	// Warnings are informational findings of the last transition, never persisted.
	Warnings []string `db:"-" json:"warnings,omitempty"`
}

// Line is a row of the document table part.
type Line struct {
	ID     id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	// ItemID is nil for non-inventory service lines
	ItemID      *id.ID   `db:"item_id" json:"itemId,omitempty"`
	Role        LineRole `db:"role" json:"role,omitempty"`
	Description string   `db:"description" json:"description,omitempty"`

	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	UnitCost    *types.Money   `db:"unit_cost" json:"unitCost,omitempty"`
	DiscountPct types.Money    `db:"discount_pct" json:"discountPct"`
	LineTotal   types.Money    `db:"line_total" json:"lineTotal"`

	// Set for lines derived from a source document
	SourceLineID             *id.ID         `db:"source_line_id" json:"sourceLineId,omitempty"`
	QuantityAlreadyFulfilled types.Quantity `db:"quantity_already_fulfilled" json:"quantityAlreadyFulfilled"`

	// PostedUnitCost is the cost-layer cost applied at post
	PostedUnitCost types.Money `db:"posted_unit_cost" json:"postedUnitCost"`
}

// Allocation assigns part of an adjustment total to an open invoice.
type Allocation struct {
	ID              id.ID       `db:"allocation_id" json:"allocationId"`
	TargetInvoiceID id.ID       `db:"target_invoice_id" json:"targetInvoiceId"`
	AllocatedAmount types.Money `db:"allocated_amount" json:"allocatedAmount"`
}

// New creates a Draft document of kind using the family defaults.
func New(kind Kind, date time.Time) (*Document, error) {
	p, err := ProfileOf(kind)
	if err != nil {
		return nil, err
	}
	return &Document{
		Document: entity.NewDocument(p.DefaultTransactionType, date),
		Kind:     kind,
		TaxMode:  p.DefaultTaxMode,
		Lines:    make([]Line, 0),
	}, nil
}

// Profile returns the family configuration of the document.
func (d *Document) Profile() (Profile, error) {
	return ProfileOf(d.Kind)
}

// IsStock reports whether the line moves inventory.
func (l *Line) IsStock() bool {
	return l.ItemID != nil && !id.IsNil(*l.ItemID)
}

// NetUnitPrice is the unit price after discount.
func (l *Line) NetUnitPrice() types.Money {
	return l.UnitPrice.Mul(decimal.NewFromInt(1).Sub(l.DiscountPct.Div(hundred)))
}

// IncomingUnitCost is the cost a receipt line adds to the cost layer:
// the explicit unit cost when set, otherwise the net unit price.
func (l *Line) IncomingUnitCost() types.Money {
	if l.UnitCost != nil {
		return *l.UnitCost
	}
	return l.NetUnitPrice()
}

// TotalAmount is the amount allocations must add up to.
func (d *Document) TotalAmount() types.Money {
	return d.GrandTotal
}

// AllocatedSum returns Σ allocatedAmount.
func (d *Document) AllocatedSum() types.Money {
	sum := decimal.Zero
	for _, a := range d.Allocations {
		sum = sum.Add(a.AllocatedAmount)
	}
	return sum
}

// LinesByRole returns the lines with role r.
func (d *Document) LinesByRole(r LineRole) []Line {
	var out []Line
	for _, l := range d.Lines {
		if l.Role == r {
			out = append(out, l)
		}
	}
	return out
}

// TaxLines projects lines for the tax calculator.
func (d *Document) TaxLines() []tax.Line {
	out := make([]tax.Line, 0, len(d.Lines))
	for _, l := range d.Lines {
		if d.Kind == KindItemConversion {
			continue
		}
		out = append(out, tax.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice, DiscountPct: l.DiscountPct})
	}
	return out
}

// Recalculate recomputes every derived field. It must run after any line mutation.
func (d *Document) Recalculate(calc *tax.Calculator) {
	for i := range d.Lines {
		l := &d.Lines[i]
		l.LineNo = i + 1
		if id.IsNil(l.ID) {
			l.ID = id.New()
		}
		if l.Role == "" {
			l.Role = RoleNormal
		}
		l.LineTotal = tax.LineTotal(tax.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice, DiscountPct: l.DiscountPct})
	}
	for i := range d.Allocations {
		if id.IsNil(d.Allocations[i].ID) {
			d.Allocations[i].ID = id.New()
		}
	}

	res := calc.Compute(d.TaxLines(), d.TaxMode)
	d.Subtotal = res.Subtotal
	d.TaxBase = res.TaxBase
	d.TaxAmount = res.TaxAmount
	d.GrandTotal = res.GrandTotal
}

// Validate implements entity.Validatable.
func (d *Document) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}

	p, err := d.Profile()
	if err != nil {
		return err
	}

	switch p.Party {
	case PartyCustomer, PartySupplier:
		if d.PartnerID == nil || id.IsNil(*d.PartnerID) {
			return apperror.NewFieldValidation("partnerId", fmt.Sprintf("%s is required", p.Party))
		}
	case PartyLocation:
		if d.PartnerID != nil {
			return apperror.NewFieldValidation("partnerId", "partner does not apply to "+string(d.Kind))
		}
	}

	if p.RequiresLocation() && (d.LocationID == nil || id.IsNil(*d.LocationID)) {
		return apperror.NewFieldValidation("locationId", "location is required")
	}

	if p.RequiresCounterAccount && (d.CounterAccountID == nil || id.IsNil(*d.CounterAccountID)) {
		return apperror.NewFieldValidation("counterAccountId", "counter account is required")
	}

	if _, err := tax.ParseMode(string(d.TaxMode), p.DefaultTaxMode); err != nil {
		return err
	}

	if err := d.validateLines(p); err != nil {
		return err
	}

	return d.validateAllocations(p)
}

func (d *Document) validateLines(p Profile) error {
	if len(d.Lines) == 0 {
		return apperror.NewFieldValidation("lines", "at least one line is required")
	}

	inputs, outputs := 0, 0
	for i, line := range d.Lines {
		lineErr := func(msg string) error {
			return apperror.NewFieldValidation("lines", msg).WithDetail("lineNo", i+1)
		}

		if line.Quantity <= 0 {
			return lineErr("quantity must be positive")
		}
		if line.UnitPrice.IsNegative() {
			return lineErr("unit price must not be negative")
		}
		if line.UnitCost != nil && line.UnitCost.IsNegative() {
			return lineErr("unit cost must not be negative")
		}
		if line.DiscountPct.IsNegative() || line.DiscountPct.GreaterThan(hundred) {
			return lineErr("discount must be between 0 and 100")
		}
		if p.StockEffect != StockNone && !line.IsStock() {
			return lineErr("item is required")
		}

		switch line.Role {
		case RoleInput:
			inputs++
		case RoleOutput:
			outputs++
		case RoleNormal, "":
		default:
			return lineErr(fmt.Sprintf("unknown line role %q", line.Role))
		}
		if p.StockEffect != StockConversion && (line.Role == RoleInput || line.Role == RoleOutput) {
			return lineErr("input/output roles apply to conversions only")
		}
	}

	if p.StockEffect == StockConversion {
		if inputs == 0 || outputs == 0 || inputs+outputs != len(d.Lines) {
			return apperror.NewFieldValidation("lines", "conversion needs input and output lines only")
		}
	}
	return nil
}

func (d *Document) validateAllocations(p Profile) error {
	if !d.AllocateToInvoice {
		if len(d.Allocations) > 0 {
			return apperror.NewFieldValidation("allocations", "allocations require allocateToInvoice")
		}
		return nil
	}

	if !p.Allocatable {
		return apperror.NewFieldValidation("allocateToInvoice", string(d.Kind)+" cannot be allocated to invoices")
	}

	seen := make(map[id.ID]struct{}, len(d.Allocations))
	for i, a := range d.Allocations {
		if id.IsNil(a.TargetInvoiceID) {
			return apperror.NewFieldValidation("allocations", "target invoice is required").WithDetail("index", i)
		}
		if a.AllocatedAmount.IsNegative() {
			return apperror.NewFieldValidation("allocations", "allocated amount must not be negative").WithDetail("index", i)
		}
		if _, dup := seen[a.TargetInvoiceID]; dup {
			return apperror.NewFieldValidation("allocations", "invoice allocated twice").
				WithDetail("invoice_id", a.TargetInvoiceID.String())
		}
		seen[a.TargetInvoiceID] = struct{}{}
	}
	return nil
}

// ApplyChanges copies the user-editable fields of src onto d.
// Identity, kind, number, status and source link are kept.
func (d *Document) ApplyChanges(src *Document) {
	d.Date = src.Date
	d.Comment = src.Comment
	d.PartnerID = src.PartnerID
	d.LocationID = src.LocationID
	d.CounterAccountID = src.CounterAccountID
	if src.TaxMode != "" {
		d.TaxMode = src.TaxMode
	}
	d.AllocateToInvoice = src.AllocateToInvoice
	d.DistributeCost = src.DistributeCost
	d.Lines = cloneLines(src.Lines)
	d.Allocations = append([]Allocation(nil), src.Allocations...)
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.PartnerID = cloneID(d.PartnerID)
	c.LocationID = cloneID(d.LocationID)
	c.CounterAccountID = cloneID(d.CounterAccountID)
	c.SourceDocumentID = cloneID(d.SourceDocumentID)
	c.Lines = cloneLines(d.Lines)
	c.Allocations = append([]Allocation(nil), d.Allocations...)
	c.Warnings = append([]string(nil), d.Warnings...)
	return &c
}

func cloneLines(in []Line) []Line {
	out := make([]Line, len(in))
	for i, l := range in {
		l.ItemID = cloneID(l.ItemID)
		l.SourceLineID = cloneID(l.SourceLineID)
		if l.UnitCost != nil {
			c := *l.UnitCost
			l.UnitCost = &c
		}
		out[i] = l
	}
	return out
}

func cloneID(v *id.ID) *id.ID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
