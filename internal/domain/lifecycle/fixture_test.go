package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docflow/internal/core/id"
	"docflow/internal/core/lock"
	"docflow/internal/core/types"
	"docflow/internal/domain/allocation"
	"docflow/internal/domain/costing"
	"docflow/internal/domain/document"
	"docflow/internal/domain/fulfillment"
	"docflow/internal/domain/journal"
	"docflow/internal/domain/lifecycle"
	"docflow/internal/domain/masterdata"
	"docflow/internal/domain/tax"
	"docflow/internal/infrastructure/numerator"
	"docflow/internal/infrastructure/storage/memory"
)

var docDate = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *lifecycle.Service
	catalog  *memory.Catalog
	journal  *memory.Journal
	outbox   *memory.Outbox
	audit    *memory.AuditTrail
	counters *memory.FulfillmentRepo
	balances *memory.BalanceRepo

	customer id.ID
	supplier id.ID
	item     id.ID
	item2    id.ID
	location id.ID
	counter  id.ID
}

func newFixture(t *testing.T, opts ...func(*lifecycle.Config)) *fixture {
	t.Helper()

	f := &fixture{
		catalog:  memory.NewCatalog(),
		outbox:   memory.NewOutbox(),
		audit:    memory.NewAuditTrail(),
		counters: memory.NewFulfillmentRepo(),
		balances: memory.NewBalanceRepo(),
		customer: id.New(),
		supplier: id.New(),
		item:     id.New(),
		item2:    id.New(),
		location: id.New(),
		counter:  id.New(),
	}
	f.catalog.AddPartner(masterdata.Partner{ID: f.customer, Code: "C001", Name: "Customer", Role: masterdata.RoleCustomer})
	f.catalog.AddPartner(masterdata.Partner{ID: f.supplier, Code: "S001", Name: "Supplier", Role: masterdata.RoleSupplier})
	f.catalog.AddItem(masterdata.Item{ID: f.item, Code: "WIDGET", Name: "Widget", Stocked: true})
	f.catalog.AddItem(masterdata.Item{ID: f.item2, Code: "GADGET", Name: "Gadget", Stocked: true})
	f.catalog.AddLocation(masterdata.Location{ID: f.location, Code: "WH1", Name: "Main warehouse"})
	f.catalog.AddAccount(masterdata.Account{ID: f.counter, Code: "7100", Name: "Adjustments"})

	accounts := journal.Accounts{
		Inventory: id.New(), Receivable: id.New(), Payable: id.New(), Revenue: id.New(),
		TaxOutput: id.New(), TaxInput: id.New(), COGS: id.New(), Clearing: id.New(),
	}
	f.journal = memory.NewJournal(journal.NewBuilder(accounts))

	txm := memory.NewTxManager()
	cfg := lifecycle.Config{
		Repo:       memory.NewDocumentRepo(),
		Costing:    costing.NewEngine(memory.NewCostingRepo(), txm),
		Tracker:    fulfillment.NewTracker(f.counters),
		Reconciler: allocation.NewReconciler(f.balances, allocation.DefaultEpsilon),
		Journal:    f.journal,
		MasterData: f.catalog,
		Numerator:  numerator.NewMemorySequence(),
		TxManager:  txm,
		Locker:     lock.NewKeyedLocker(5 * time.Second),
		Events:     f.outbox,
		Audit:      f.audit,
	}
	for _, o := range opts {
		o(&cfg)
	}
	f.svc = lifecycle.NewService(cfg)
	return f
}

func (f *fixture) stockLine(qty int64, price string) document.Line {
	return document.Line{ItemID: id.Ptr(f.item), Quantity: types.NewQuantity(qty), UnitPrice: types.MustMoney(price)}
}

func (f *fixture) serviceLine(amount string) document.Line {
	return document.Line{Description: "amount", Quantity: types.NewQuantity(1), UnitPrice: types.MustMoney(amount)}
}

func (f *fixture) newDoc(t *testing.T, kind document.Kind, lines ...document.Line) *document.Document {
	t.Helper()
	doc, err := document.New(kind, docDate)
	require.NoError(t, err)
	p, err := document.ProfileOf(kind)
	require.NoError(t, err)

	switch p.Party {
	case document.PartyCustomer:
		doc.PartnerID = id.Ptr(f.customer)
	case document.PartySupplier:
		doc.PartnerID = id.Ptr(f.supplier)
	}
	if p.RequiresLocation() || p.Tracked {
		doc.LocationID = id.Ptr(f.location)
	}
	if p.RequiresCounterAccount {
		doc.CounterAccountID = id.Ptr(f.counter)
	}
	doc.Lines = lines
	return doc
}

func (f *fixture) create(t *testing.T, doc *document.Document) *document.Document {
	t.Helper()
	created, err := f.svc.Create(context.Background(), doc)
	require.NoError(t, err)
	return created
}

// post approves three-state documents first.
func (f *fixture) post(t *testing.T, doc *document.Document) *document.Document {
	t.Helper()
	ctx := context.Background()
	p, err := document.ProfileOf(doc.Kind)
	require.NoError(t, err)
	if p.Approval == document.ThreeState {
		_, err := f.svc.Approve(ctx, doc.ID)
		require.NoError(t, err)
	}
	posted, err := f.svc.Post(ctx, doc.ID)
	require.NoError(t, err)
	return posted
}

func (f *fixture) receive(t *testing.T, qty int64, cost string) *document.Document {
	t.Helper()
	return f.post(t, f.create(t, f.newDoc(t, document.KindReceiving, f.stockLine(qty, cost))))
}

func (f *fixture) invoice(t *testing.T, amount string) *document.Document {
	t.Helper()
	inv := f.newDoc(t, document.KindARInvoice, f.serviceLine(amount))
	inv.TaxMode = tax.NoTax
	return f.post(t, f.create(t, inv))
}

func (f *fixture) layer(t *testing.T) costing.Layer {
	t.Helper()
	l, err := f.svc.CostLayer(context.Background(), f.item, f.location)
	require.NoError(t, err)
	return l
}

func (f *fixture) balance(t *testing.T, invoiceID id.ID) types.Money {
	t.Helper()
	b, err := f.balances.Get(context.Background(), invoiceID)
	require.NoError(t, err)
	return b.Outstanding
}

func (f *fixture) events(kind string) int {
	n := 0
	for _, e := range f.outbox.Events() {
		if e.EventType == kind {
			n++
		}
	}
	return n
}

func (f *fixture) partner(partnerID id.ID) masterdata.Partner {
	return masterdata.Partner{ID: partnerID, Code: "C" + partnerID.String()[:4], Name: "Other customer", Role: masterdata.RoleCustomer}
}
