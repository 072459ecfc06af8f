package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	"docflow/internal/core/entity"
	"docflow/internal/core/id"
	corenumerator "docflow/internal/core/numerator"
	"docflow/internal/core/security"
	"docflow/internal/core/types"
	"docflow/internal/domain"
	"docflow/internal/domain/audit"
	"docflow/internal/domain/document"
	"docflow/internal/domain/guard"
	"docflow/internal/domain/lifecycle"
	"docflow/internal/infrastructure/storage/memory"
)

func code(t *testing.T, err error) string {
	t.Helper()
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.Code
}

func TestReceiving_WeightedAverage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.receive(t, 10, "100")
	avg, err := f.svc.AverageCost(ctx, f.item, f.location)
	require.NoError(t, err)
	assert.True(t, avg.Equal(types.MustMoney("100")))
	assert.Equal(t, types.NewQuantity(10), f.layer(t).Quantity)
	assert.Equal(t, entity.StatusPosted, first.Status)
	assert.True(t, first.Lines[0].PostedUnitCost.Equal(types.MustMoney("100")))

	f.receive(t, 5, "130")
	layer := f.layer(t)
	assert.Equal(t, types.NewQuantity(15), layer.Quantity)
	assert.True(t, layer.AverageCost.Equal(types.MustMoney("110")), layer.AverageCost.String())
}

func TestAverageCost_EmptyLayerIsZero(t *testing.T) {
	f := newFixture(t)
	avg, err := f.svc.AverageCost(context.Background(), id.New(), f.location)
	require.NoError(t, err)
	assert.True(t, avg.IsZero())
}

func TestShipment_OverFulfillmentRejectedAtPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 30, "100")

	so := f.post(t, f.create(t, f.newDoc(t, document.KindSalesOrder, f.stockLine(20, "150"))))

	shp, err := f.svc.Derive(ctx, so.ID, document.KindShipment, lifecycle.DeriveOptions{Date: docDate})
	require.NoError(t, err)
	require.Len(t, shp.Lines, 1)
	assert.Equal(t, types.NewQuantity(20), shp.Lines[0].Quantity)

	shp.Lines[0].Quantity = types.NewQuantity(8)
	shp, err = f.svc.Update(ctx, shp)
	require.NoError(t, err)
	shp, err = f.svc.Post(ctx, shp.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPosted, shp.Status)

	counters, err := f.svc.Counters(ctx, so.ID)
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, types.NewQuantity(12), counters[0].Outstanding())

	second, err := f.svc.Derive(ctx, so.ID, document.KindShipment, lifecycle.DeriveOptions{Date: docDate})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(12), second.Lines[0].Quantity)
	assert.Equal(t, types.NewQuantity(8), second.Lines[0].QuantityAlreadyFulfilled)

	second.Lines[0].Quantity = types.NewQuantity(15)
	second, err = f.svc.Update(ctx, second)
	require.NoError(t, err)

	_, err = f.svc.Post(ctx, second.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, apperror.CodeOverFulfillment, code(t, err))

	// Nothing of the failed post survived.
	counters, err = f.svc.Counters(ctx, so.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(12), counters[0].Outstanding())
	assert.Equal(t, types.NewQuantity(22), f.layer(t).Quantity)
	reread, err := f.svc.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, reread.Status)
}

func TestDerive_LocationFromOptionsWhenOrderHasNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 10, "100")

	order := f.newDoc(t, document.KindSalesOrder, f.stockLine(4, "150"))
	order.LocationID = nil
	so := f.post(t, f.create(t, order))
	require.Nil(t, so.LocationID)

	_, err := f.svc.Derive(ctx, so.ID, document.KindShipment, lifecycle.DeriveOptions{Date: docDate})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.Derive(ctx, so.ID, document.KindShipment, lifecycle.DeriveOptions{Date: docDate, LocationID: id.Ptr(id.New())})
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err), "unknown location is rejected")

	shp, err := f.svc.Derive(ctx, so.ID, document.KindShipment, lifecycle.DeriveOptions{Date: docDate, LocationID: id.Ptr(f.location)})
	require.NoError(t, err)
	require.NotNil(t, shp.LocationID)
	assert.Equal(t, f.location, *shp.LocationID)

	_, err = f.svc.Post(ctx, shp.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(6), f.layer(t).Quantity)
}

func TestCreditAdjustment_AllocatesAgainstInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv1 := f.invoice(t, "300")
	inv2 := f.invoice(t, "250")

	credit := f.newDoc(t, document.KindARCreditAdjustment, f.serviceLine("500"))
	credit.AllocateToInvoice = true
	credit.Allocations = []document.Allocation{
		{TargetInvoiceID: inv1.ID, AllocatedAmount: types.MustMoney("300")},
		{TargetInvoiceID: inv2.ID, AllocatedAmount: types.MustMoney("200")},
	}
	credit = f.create(t, credit)

	approved, err := f.svc.Approve(ctx, credit.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, approved.Status)
	// Approval has no balance effect.
	assert.True(t, f.balance(t, inv1.ID).Equal(types.MustMoney("300")))

	_, err = f.svc.Post(ctx, credit.ID)
	require.NoError(t, err)
	assert.True(t, f.balance(t, inv1.ID).IsZero())
	assert.True(t, f.balance(t, inv2.ID).Equal(types.MustMoney("50")))

	// The consumed invoice cannot be unposted.
	_, err = f.svc.Unpost(ctx, inv1.ID)
	assert.True(t, apperror.IsDependencyConflict(err))

	unposted, err := f.svc.Unpost(ctx, credit.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, unposted.Status)
	assert.True(t, f.balance(t, inv1.ID).Equal(types.MustMoney("300")))
	assert.True(t, f.balance(t, inv2.ID).Equal(types.MustMoney("250")))

	_, err = f.svc.Unpost(ctx, inv1.ID)
	assert.NoError(t, err)
}

func TestApprove_AllocationTolerance(t *testing.T) {
	tests := []struct {
		allocated string
		ok        bool
	}{
		{"100", true},
		{"100.009", true},
		{"99.991", true},
		{"100.02", false},
		{"99.98", false},
	}

	for _, tt := range tests {
		t.Run(tt.allocated, func(t *testing.T) {
			f := newFixture(t)
			inv := f.invoice(t, "150")

			credit := f.newDoc(t, document.KindARCreditAdjustment, f.serviceLine("100"))
			credit.AllocateToInvoice = true
			credit.Allocations = []document.Allocation{
				{TargetInvoiceID: inv.ID, AllocatedAmount: types.MustMoney(tt.allocated)},
			}
			credit = f.create(t, credit)

			_, err := f.svc.Approve(context.Background(), credit.ID)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err))
			assert.Equal(t, apperror.CodeAllocationMismatch, code(t, err))
		})
	}
}

func TestAllocation_OtherPartnerRejected(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, "100")

	other := id.New()
	f.catalog.AddPartner(f.partner(other))

	credit := f.newDoc(t, document.KindARCreditAdjustment, f.serviceLine("100"))
	credit.PartnerID = id.Ptr(other)
	credit.AllocateToInvoice = true
	credit.Allocations = []document.Allocation{{TargetInvoiceID: inv.ID, AllocatedAmount: types.MustMoney("100")}}

	_, err := f.svc.Create(context.Background(), credit)
	assert.True(t, apperror.IsValidation(err))
}

func TestPost_TwiceIsStateError(t *testing.T) {
	f := newFixture(t)
	rcv := f.receive(t, 10, "100")
	before := f.layer(t)
	journals := f.journal.Posted

	_, err := f.svc.Post(context.Background(), rcv.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsState(err))

	assert.Equal(t, before.Quantity, f.layer(t).Quantity)
	assert.True(t, before.AverageCost.Equal(f.layer(t).AverageCost))
	assert.Equal(t, journals, f.journal.Posted)
}

func TestPost_ThreeStateRequiresApproval(t *testing.T) {
	f := newFixture(t)
	po := f.create(t, f.newDoc(t, document.KindPurchaseOrder, f.stockLine(5, "10")))

	_, err := f.svc.Post(context.Background(), po.ID)
	assert.True(t, apperror.IsState(err))
}

func TestPost_JournalFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rcv := f.create(t, f.newDoc(t, document.KindReceiving, f.stockLine(10, "100")))

	f.journal.FailPost = errors.New("ledger unavailable")
	_, err := f.svc.Post(ctx, rcv.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCollaboratorFailure(err))

	assert.True(t, f.layer(t).Quantity.IsZero())
	reread, err := f.svc.GetByID(ctx, rcv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, reread.Status)
	assert.Empty(t, reread.JournalRef)
	assert.Zero(t, f.events(domain.EventDocumentPosted))

	f.journal.FailPost = nil
	_, err = f.svc.Post(ctx, rcv.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), f.layer(t).Quantity)
}

type failingPublisher struct {
	*memory.Outbox
	failOn string
}

func (p failingPublisher) Publish(ctx context.Context, e domain.DomainEvent) error {
	if e.EventType == p.failOn {
		return errors.New("outbox unavailable")
	}
	return p.Outbox.Publish(ctx, e)
}

func TestPost_FailureAfterJournalRetractsEntry(t *testing.T) {
	f := newFixture(t, func(cfg *lifecycle.Config) {
		cfg.Events = failingPublisher{Outbox: memory.NewOutbox(), failOn: domain.EventDocumentPosted}
	})
	ctx := context.Background()
	rcv := f.create(t, f.newDoc(t, document.KindReceiving, f.stockLine(10, "100")))

	_, err := f.svc.Post(ctx, rcv.ID)
	require.Error(t, err)

	assert.Equal(t, 1, f.journal.Posted)
	assert.Equal(t, 1, f.journal.Retracted)
	assert.Zero(t, f.journal.Len())
	assert.True(t, f.layer(t).Quantity.IsZero())

	reread, err := f.svc.GetByID(ctx, rcv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, reread.Status)
}

func TestCreate_NumberingFailureBlocksSave(t *testing.T) {
	f := newFixture(t, func(cfg *lifecycle.Config) {
		cfg.Numerator = &corenumerator.MockGenerator{
			GetNextNumberFunc: func(ctx context.Context, cfg corenumerator.Config, opts *corenumerator.Options, period time.Time) (string, error) {
				return "", errors.New("sequence table locked")
			},
		}
	})

	_, err := f.svc.Create(context.Background(), f.newDoc(t, document.KindPurchaseOrder, f.stockLine(1, "10")))
	require.Error(t, err)
	assert.True(t, apperror.IsCollaboratorFailure(err))

	res, err := f.svc.List(context.Background(), domain.DefaultListFilter())
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount)
}

func TestCreate_AssignsNumberAndKeepsTransactionType(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, f.newDoc(t, document.KindSalesOrder, f.stockLine(1, "10")))
	b := f.create(t, f.newDoc(t, document.KindSalesOrder, f.stockLine(1, "10")))

	assert.Equal(t, "SO", a.TransactionTypeCode)
	assert.Equal(t, "SO-2026-00001", a.Number)
	assert.Equal(t, "SO-2026-00002", b.Number)
	assert.Equal(t, entity.StatusDraft, a.Status)
	assert.Equal(t, 2, f.events(domain.EventDocumentCreated))
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  func() *document.Document
	}{
		{"no lines", func() *document.Document { return f.newDoc(t, document.KindPurchaseOrder) }},
		{"zero quantity", func() *document.Document {
			return f.newDoc(t, document.KindPurchaseOrder, f.stockLine(0, "10"))
		}},
		{"missing partner", func() *document.Document {
			d := f.newDoc(t, document.KindSalesOrder, f.stockLine(1, "10"))
			d.PartnerID = nil
			return d
		}},
		{"unknown item", func() *document.Document {
			l := f.stockLine(1, "10")
			l.ItemID = id.Ptr(id.New())
			return f.newDoc(t, document.KindReceiving, l)
		}},
		{"supplier on sales order", func() *document.Document {
			d := f.newDoc(t, document.KindSalesOrder, f.stockLine(1, "10"))
			d.PartnerID = id.Ptr(f.supplier)
			return d
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.doc())
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err), err.Error())
		})
	}
}

func TestCreate_MasterDataOutage(t *testing.T) {
	f := newFixture(t)
	f.catalog.Err = errors.New("connection reset")

	_, err := f.svc.Create(context.Background(), f.newDoc(t, document.KindPurchaseOrder, f.stockLine(1, "10")))
	assert.True(t, apperror.IsCollaboratorFailure(err))
}

func TestUpdateAndDelete_OnlyInDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	po := f.create(t, f.newDoc(t, document.KindPurchaseOrder, f.stockLine(5, "10")))
	po.Lines[0].Quantity = types.NewQuantity(6)
	updated, err := f.svc.Update(ctx, po)
	require.NoError(t, err)
	assert.True(t, updated.GrandTotal.Equal(types.MustMoney("66.6")), updated.GrandTotal.String())

	_, err = f.svc.Approve(ctx, po.ID)
	require.NoError(t, err)

	updated.Comment = "late edit"
	updated.Version = 0
	_, err = f.svc.Update(ctx, updated)
	assert.True(t, apperror.IsState(err))
	assert.True(t, apperror.IsState(f.svc.Delete(ctx, po.ID)))

	unapproved, err := f.svc.Unapprove(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, unapproved.Status)

	require.NoError(t, f.svc.Delete(ctx, po.ID))
	_, err = f.svc.GetByID(ctx, po.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestUpdate_StaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	po := f.create(t, f.newDoc(t, document.KindPurchaseOrder, f.stockLine(5, "10")))
	stale := po.Clone()

	po.Comment = "first"
	_, err := f.svc.Update(ctx, po)
	require.NoError(t, err)

	stale.Comment = "second"
	_, err = f.svc.Update(ctx, stale)
	assert.True(t, apperror.IsConcurrentModification(err))
}

func TestApprove_TwoStateKindHasNoApproval(t *testing.T) {
	f := newFixture(t)
	rcv := f.create(t, f.newDoc(t, document.KindReceiving, f.stockLine(1, "10")))

	_, err := f.svc.Approve(context.Background(), rcv.ID)
	assert.True(t, apperror.IsState(err))
}

func TestUnpost_RecomputesCostLayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.receive(t, 10, "100")
	second := f.receive(t, 5, "130")
	f.post(t, f.create(t, f.newDoc(t, document.KindShipment, f.stockLine(3, "200"))))

	layer := f.layer(t)
	assert.Equal(t, types.NewQuantity(12), layer.Quantity)
	assert.True(t, layer.AverageCost.Equal(types.MustMoney("110")))

	unposted, err := f.svc.Unpost(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, unposted.Status)
	assert.Empty(t, unposted.JournalRef)

	// Replay of 10@100 then the issue of 3.
	layer = f.layer(t)
	assert.Equal(t, types.NewQuantity(7), layer.Quantity)
	assert.True(t, layer.AverageCost.Equal(types.MustMoney("100")), layer.AverageCost.String())
	assert.Equal(t, 1, f.journal.Retracted)
}

func TestUnpost_BlockedWhenIssuedStockWouldGoNegative(t *testing.T) {
	f := newFixture(t)
	rcv := f.receive(t, 10, "100")
	f.post(t, f.create(t, f.newDoc(t, document.KindShipment, f.stockLine(8, "200"))))

	_, err := f.svc.Unpost(context.Background(), rcv.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsDependencyConflict(err))
	assert.Equal(t, types.NewQuantity(2), f.layer(t).Quantity)
}

func TestShipment_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 2, "100")
	shp := f.create(t, f.newDoc(t, document.KindShipment, f.stockLine(3, "200")))

	_, err := f.svc.Post(context.Background(), shp.ID)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInsufficientStock, code(t, err))
}

func TestFulfillment_AutoCloseAndReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 20, "100")

	so := f.post(t, f.create(t, f.newDoc(t, document.KindSalesOrder, f.stockLine(20, "150"))))
	shp, err := f.svc.Derive(ctx, so.ID, document.KindShipment, lifecycle.DeriveOptions{Date: docDate})
	require.NoError(t, err)
	shp, err = f.svc.Post(ctx, shp.ID)
	require.NoError(t, err)

	closed, err := f.svc.GetByID(ctx, so.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusClosed, closed.Status)
	assert.Equal(t, 1, f.events(domain.EventDocumentClosed))

	_, err = f.svc.Derive(ctx, so.ID, document.KindShipment, lifecycle.DeriveOptions{Date: docDate})
	assert.True(t, apperror.IsState(err))

	// The order is consumed by the shipment.
	_, err = f.svc.Unpost(ctx, so.ID)
	assert.True(t, apperror.IsDependencyConflict(err))

	_, err = f.svc.Unpost(ctx, shp.ID)
	require.NoError(t, err)

	reopened, err := f.svc.GetByID(ctx, so.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPosted, reopened.Status)
	assert.Equal(t, 1, f.events(domain.EventDocumentReopened))

	unposted, err := f.svc.Unpost(ctx, so.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, unposted.Status)

	counters, err := f.svc.Counters(ctx, so.ID)
	require.NoError(t, err)
	assert.Empty(t, counters)
}

func TestInvoice_BillsShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 10, "100")

	shp := f.post(t, f.create(t, f.newDoc(t, document.KindShipment, f.stockLine(4, "150"))))
	inv, err := f.svc.Derive(ctx, shp.ID, document.KindARInvoice, lifecycle.DeriveOptions{Date: docDate})
	require.NoError(t, err)
	assert.True(t, inv.GrandTotal.Equal(types.MustMoney("666")), inv.GrandTotal.String())

	inv = f.post(t, inv)
	assert.True(t, f.balance(t, inv.ID).Equal(types.MustMoney("666")))

	// Billed shipments stay posted.
	_, err = f.svc.Unpost(ctx, shp.ID)
	assert.True(t, apperror.IsDependencyConflict(err))
}

func TestItemConversion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 10, "100")

	conv := f.newDoc(t, document.KindItemConversion,
		document.Line{ItemID: id.Ptr(f.item), Role: document.RoleInput, Quantity: types.NewQuantity(10)},
		document.Line{ItemID: id.Ptr(f.item2), Role: document.RoleOutput, Quantity: types.NewQuantity(4)},
		document.Line{ItemID: id.Ptr(f.item2), Role: document.RoleOutput, Quantity: types.NewQuantity(16)},
	)
	conv.DistributeCost = true
	conv = f.create(t, conv)

	posted, err := f.svc.Post(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, posted.Warnings)
	assert.True(t, posted.Lines[0].PostedUnitCost.Equal(types.MustMoney("100")))
	assert.True(t, posted.Lines[1].PostedUnitCost.Equal(types.MustMoney("50")))
	assert.True(t, posted.Lines[2].PostedUnitCost.Equal(types.MustMoney("50")))

	assert.True(t, f.layer(t).Quantity.IsZero())
	out, err := f.svc.CostLayer(ctx, f.item2, f.location)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(20), out.Quantity)
	assert.True(t, out.AverageCost.Equal(types.MustMoney("50")))

	entry, ok := f.journal.Entry(posted.JournalRef)
	require.True(t, ok)
	assert.True(t, entry.Balanced())
}

func TestItemConversion_ManualCostWarns(t *testing.T) {
	f := newFixture(t)
	f.receive(t, 10, "100")

	cost := types.MustMoney("80")
	conv := f.create(t, f.newDoc(t, document.KindItemConversion,
		document.Line{ItemID: id.Ptr(f.item), Role: document.RoleInput, Quantity: types.NewQuantity(10)},
		document.Line{ItemID: id.Ptr(f.item2), Role: document.RoleOutput, Quantity: types.NewQuantity(10), UnitCost: &cost},
	))

	posted, err := f.svc.Post(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, posted.Warnings, 1)
	assert.Contains(t, posted.Warnings[0], "-200")
}

func TestPost_ClosedPeriod(t *testing.T) {
	f := newFixture(t, func(cfg *lifecycle.Config) {
		cfg.Policy = security.NewClosedPeriodPolicy(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	})

	_, err := f.svc.Create(context.Background(), f.newDoc(t, document.KindReceiving, f.stockLine(1, "10")))
	require.Error(t, err)
	assert.Equal(t, apperror.CodePeriodClosed, code(t, err))
}

func TestGuard_RejectsApproval(t *testing.T) {
	guards, err := guard.NewSet()
	require.NoError(t, err)
	require.NoError(t, guards.Add(guard.Rule{
		Kind:       document.KindPurchaseOrder,
		Action:     guard.ActionApprove,
		Expression: `doc.grandTotal < 1000.0`,
		Message:    "order limit exceeded",
	}))
	f := newFixture(t, func(cfg *lifecycle.Config) { cfg.Guards = guards })
	ctx := context.Background()

	big := f.create(t, f.newDoc(t, document.KindPurchaseOrder, f.stockLine(100, "10")))
	_, err = f.svc.Approve(ctx, big.ID)
	assert.Equal(t, apperror.CodeGuardRejected, code(t, err))

	small := f.create(t, f.newDoc(t, document.KindPurchaseOrder, f.stockLine(1, "10")))
	_, err = f.svc.Approve(ctx, small.ID)
	assert.NoError(t, err)
}

func TestHooksAndAudit(t *testing.T) {
	f := newFixture(t)
	var seen []string
	f.svc.Hooks().OnBeforePost(func(ctx context.Context, doc *document.Document) error {
		seen = append(seen, "before:"+doc.Number)
		return nil
	})
	f.svc.Hooks().OnAfterPost(func(ctx context.Context, doc *document.Document) error {
		seen = append(seen, "after:"+string(doc.Status))
		return nil
	})

	rcv := f.receive(t, 1, "10")
	assert.Equal(t, []string{"before:" + rcv.Number, "after:Posted"}, seen)

	var actions []audit.Action
	for _, r := range f.audit.Records() {
		actions = append(actions, r.Action)
	}
	assert.Equal(t, []audit.Action{audit.ActionCreate, audit.ActionPost}, actions)
}

func TestHooks_BeforePostFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.svc.Hooks().OnBeforePost(func(ctx context.Context, doc *document.Document) error {
		return apperror.NewValidation("blocked by hook")
	})
	rcv := f.create(t, f.newDoc(t, document.KindReceiving, f.stockLine(1, "10")))

	_, err := f.svc.Post(context.Background(), rcv.ID)
	assert.True(t, apperror.IsValidation(err))
	assert.Zero(t, f.journal.Posted)
}

func TestSuggestAllocations(t *testing.T) {
	f := newFixture(t)
	inv1 := f.invoice(t, "300")
	inv2 := f.invoice(t, "250")

	s, err := f.svc.SuggestAllocations(context.Background(), document.KindARCreditAdjustment, f.customer, types.MustMoney("400"))
	require.NoError(t, err)
	require.Len(t, s.Allocations, 2)
	assert.True(t, s.Allocated.Equal(types.MustMoney("400")))
	assert.True(t, s.Remaining.IsZero())

	byInvoice := map[id.ID]string{}
	for _, a := range s.Allocations {
		byInvoice[a.TargetInvoiceID] = a.AllocatedAmount.String()
	}
	assert.Len(t, byInvoice, 2)
	assert.Contains(t, byInvoice, inv1.ID)
	assert.Contains(t, byInvoice, inv2.ID)

	_, err = f.svc.SuggestAllocations(context.Background(), document.KindARDebitAdjustment, f.customer, types.MustMoney("1"))
	assert.True(t, apperror.IsValidation(err))
}

func TestPost_ConcurrentShipmentsAgainstSameLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, 50, "100")

	so := f.post(t, f.create(t, f.newDoc(t, document.KindSalesOrder, f.stockLine(12, "150"))))

	var drafts []*document.Document
	for range 2 {
		shp, err := f.svc.Derive(ctx, so.ID, document.KindShipment, lifecycle.DeriveOptions{Date: docDate})
		require.NoError(t, err)
		shp.Lines[0].Quantity = types.NewQuantity(8)
		shp, err = f.svc.Update(ctx, shp)
		require.NoError(t, err)
		drafts = append(drafts, shp)
	}

	errs := make([]error, len(drafts))
	var wg sync.WaitGroup
	for i, d := range drafts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Post(ctx, d.ID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperror.CodeOverFulfillment, code(t, err))
	}
	assert.Equal(t, 1, succeeded)

	counters, err := f.svc.Counters(ctx, so.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(8), counters[0].Fulfilled)
	assert.Equal(t, types.NewQuantity(42), f.layer(t).Quantity)
}

func TestPost_ConcurrentSameDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rcv := f.create(t, f.newDoc(t, document.KindReceiving, f.stockLine(10, "100")))

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Post(ctx, rcv.ID)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperror.IsState(err))
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, types.NewQuantity(10), f.layer(t).Quantity)
	assert.Equal(t, 1, f.journal.Posted)
}
