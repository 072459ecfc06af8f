package journal

import (
	"github.com/shopspring/decimal"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/document"
)

// Accounts are the chart-of-accounts references used by the builder.
type Accounts struct {
	Inventory  id.ID
	Receivable id.ID
	Payable    id.ID
	Revenue    id.ID
	TaxOutput  id.ID
	TaxInput   id.ID
	COGS       id.ID
	Clearing   id.ID
}

// Builder turns a posted document into a balanced entry.
type Builder struct {
	accounts Accounts
}

// NewBuilder creates a builder over accounts.
func NewBuilder(accounts Accounts) *Builder {
	return &Builder{accounts: accounts}
}

// Build returns the entry for doc. Orders and quotations yield an entry
// without lines. An unbalanced result is an invariant violation.
func (b *Builder) Build(doc *document.Document) (*Entry, error) {
	a := b.accounts
	e := &Entry{
		ID:           id.New(),
		DocumentID:   doc.ID,
		DocumentKind: doc.Kind,
		Number:       doc.Number,
		Date:         doc.Date,
	}

	counter := func() (id.ID, error) {
		if doc.CounterAccountID == nil {
			return id.Nil(), apperror.NewInvariantViolation("posting without counter account").
				WithDetail("document_id", doc.ID.String())
		}
		return *doc.CounterAccountID, nil
	}

	switch doc.Kind {
	case document.KindARInvoice:
		e.debit(a.Receivable, doc.GrandTotal, "receivable")
		e.credit(a.Revenue, doc.TaxBase, "revenue")
		e.credit(a.TaxOutput, doc.TaxAmount, "output tax")

	case document.KindAPInvoice:
		e.debit(a.Clearing, doc.TaxBase, "goods received not invoiced")
		e.debit(a.TaxInput, doc.TaxAmount, "input tax")
		e.credit(a.Payable, doc.GrandTotal, "payable")

	case document.KindReceiving:
		v := stockValue(doc.Lines)
		e.debit(a.Inventory, v, "receipt")
		e.credit(a.Clearing, v, "goods received not invoiced")

	case document.KindShipment:
		v := stockValue(doc.Lines)
		e.debit(a.COGS, v, "cost of goods sold")
		e.credit(a.Inventory, v, "issue")

	case document.KindInventoryAdjustmentIn, document.KindInventoryAdjustmentOut:
		acc, err := counter()
		if err != nil {
			return nil, err
		}
		v := stockValue(doc.Lines)
		if doc.Kind == document.KindInventoryAdjustmentOut {
			v = v.Neg()
		}
		e.debit(a.Inventory, v, "inventory adjustment")
		e.credit(acc, v, "inventory adjustment")

	case document.KindItemConversion:
		acc, err := counter()
		if err != nil {
			return nil, err
		}
		in := stockValue(doc.LinesByRole(document.RoleInput))
		out := stockValue(doc.LinesByRole(document.RoleOutput))
		e.debit(a.Inventory, out, "conversion output")
		e.credit(a.Inventory, in, "conversion input")
		e.credit(acc, out.Sub(in), "conversion variance")

	case document.KindARDebitAdjustment, document.KindARCreditAdjustment,
		document.KindAPDebitAdjustment, document.KindAPCreditAdjustment:
		acc, err := counter()
		if err != nil {
			return nil, err
		}
		party := a.Receivable
		if doc.Kind == document.KindAPDebitAdjustment || doc.Kind == document.KindAPCreditAdjustment {
			party = a.Payable
		}
		amount := doc.GrandTotal
		if doc.Kind == document.KindARCreditAdjustment || doc.Kind == document.KindAPCreditAdjustment {
			amount = amount.Neg()
		}
		e.debit(party, amount, string(doc.Kind))
		e.credit(acc, amount, string(doc.Kind))
	}

	if !e.Balanced() {
		d, c := e.Totals()
		return nil, apperror.NewInvariantViolation("journal entry is not balanced").
			WithDetail("document_id", doc.ID.String()).
			WithDetail("debit", d.String()).
			WithDetail("credit", c.String())
	}
	return e, nil
}

// stockValue is Σ quantity × posted unit cost.
func stockValue(lines []document.Line) types.Money {
	v := decimal.Zero
	for _, l := range lines {
		v = v.Add(l.Quantity.Decimal().Mul(l.PostedUnitCost))
	}
	return v
}
