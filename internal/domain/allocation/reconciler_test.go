package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/allocation"
	"docflow/internal/domain/document"
	"docflow/internal/domain/tax"
	"docflow/internal/infrastructure/storage/memory"
)

var (
	customer = id.MustParse("0190a0c0-0000-7000-8000-0000000000c1")
	calc     = tax.NewCalculator(tax.DefaultRate)
)

func invoice(t *testing.T, date time.Time, amount string) *document.Document {
	t.Helper()
	inv, err := document.New(document.KindARInvoice, date)
	require.NoError(t, err)
	inv.PartnerID = id.Ptr(customer)
	inv.TaxMode = tax.NoTax
	inv.Lines = []document.Line{{Quantity: types.NewQuantity(1), UnitPrice: types.MustMoney(amount)}}
	inv.Recalculate(calc)
	return inv
}

func credit(t *testing.T, amount string, allocations ...document.Allocation) *document.Document {
	t.Helper()
	doc, err := document.New(document.KindARCreditAdjustment, time.Now())
	require.NoError(t, err)
	doc.PartnerID = id.Ptr(customer)
	doc.CounterAccountID = id.Ptr(id.New())
	doc.AllocateToInvoice = true
	doc.Lines = []document.Line{{Quantity: types.NewQuantity(1), UnitPrice: types.MustMoney(amount)}}
	doc.Allocations = allocations
	doc.Recalculate(calc)
	return doc
}

func alloc(inv *document.Document, amount string) document.Allocation {
	return document.Allocation{TargetInvoiceID: inv.ID, AllocatedAmount: types.MustMoney(amount)}
}

func TestCheckSum_EpsilonBoundary(t *testing.T) {
	r := allocation.NewReconciler(memory.NewBalanceRepo(), allocation.DefaultEpsilon)
	target := id.New()

	tests := []struct {
		allocated string
		ok        bool
	}{
		{"100", true},
		{"100.009", true},
		{"100.01", true},
		{"99.99", true},
		{"100.02", false},
		{"99.98", false},
	}

	for _, tt := range tests {
		t.Run(tt.allocated, func(t *testing.T) {
			doc := credit(t, "100", document.Allocation{TargetInvoiceID: target, AllocatedAmount: types.MustMoney(tt.allocated)})
			err := r.CheckSum(doc)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err))
			appErr, _ := apperror.AsAppError(err)
			assert.Equal(t, apperror.CodeAllocationMismatch, appErr.Code)
		})
	}
}

func TestCheckSum_DisabledAllocationIsUnconstrained(t *testing.T) {
	r := allocation.NewReconciler(memory.NewBalanceRepo(), allocation.DefaultEpsilon)
	doc := credit(t, "100")
	doc.AllocateToInvoice = false
	assert.NoError(t, r.CheckSum(doc))
}

func TestReconciler_CreditScenario(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBalanceRepo()
	r := allocation.NewReconciler(repo, allocation.DefaultEpsilon)

	inv1 := invoice(t, time.Now().AddDate(0, 0, -2), "300")
	inv2 := invoice(t, time.Now().AddDate(0, 0, -1), "250")
	require.NoError(t, r.OpenInvoice(ctx, inv1))
	require.NoError(t, r.OpenInvoice(ctx, inv2))

	doc := credit(t, "500", alloc(inv1, "300"), alloc(inv2, "200"))
	require.NoError(t, r.CheckSum(doc))
	require.NoError(t, r.CheckTargets(ctx, doc))
	require.NoError(t, r.Apply(ctx, doc))

	b1, _ := repo.Get(ctx, inv1.ID)
	b2, _ := repo.Get(ctx, inv2.ID)
	assert.True(t, b1.Outstanding.IsZero())
	assert.True(t, b2.Outstanding.Equal(types.MustMoney("50")))

	err := r.CloseInvoice(ctx, inv2)
	assert.True(t, apperror.IsDependencyConflict(err))

	require.NoError(t, r.Revert(ctx, doc))
	b1, _ = repo.Get(ctx, inv1.ID)
	b2, _ = repo.Get(ctx, inv2.ID)
	assert.True(t, b1.Outstanding.Equal(types.MustMoney("300")))
	assert.True(t, b2.Outstanding.Equal(types.MustMoney("250")))

	require.NoError(t, r.CloseInvoice(ctx, inv2))
	_, err = repo.Get(ctx, inv2.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestReconciler_TargetChecks(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBalanceRepo()
	r := allocation.NewReconciler(repo, allocation.DefaultEpsilon)

	inv := invoice(t, time.Now(), "100")
	require.NoError(t, r.OpenInvoice(ctx, inv))

	other := invoice(t, time.Now(), "100")
	other.PartnerID = id.Ptr(id.New())
	require.NoError(t, r.OpenInvoice(ctx, other))

	ap, err := document.New(document.KindAPInvoice, time.Now())
	require.NoError(t, err)
	ap.PartnerID = id.Ptr(customer)
	ap.Lines = []document.Line{{Quantity: types.NewQuantity(1), UnitPrice: types.MustMoney("100")}}
	ap.Recalculate(calc)
	require.NoError(t, r.OpenInvoice(ctx, ap))

	tests := []struct {
		name string
		doc  *document.Document
		code string
	}{
		{"exceeds outstanding", credit(t, "150", alloc(inv, "150")), apperror.CodeAllocationMismatch},
		{"other partner", credit(t, "50", alloc(other, "50")), apperror.CodeValidation},
		{"wrong invoice kind", credit(t, "50", alloc(ap, "50")), apperror.CodeValidation},
		{"not open", credit(t, "50", document.Allocation{TargetInvoiceID: id.New(), AllocatedAmount: types.MustMoney("50")}), apperror.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Apply(ctx, tt.doc)
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}

	b, _ := repo.Get(ctx, inv.ID)
	assert.True(t, b.Outstanding.Equal(types.MustMoney("100")))
}

func TestSuggestFIFO(t *testing.T) {
	old := allocation.Balance{InvoiceID: id.New(), Date: time.Now().AddDate(0, -1, 0), Outstanding: types.MustMoney("300")}
	mid := allocation.Balance{InvoiceID: id.New(), Date: time.Now().AddDate(0, 0, -3), Outstanding: types.MustMoney("250")}
	paid := allocation.Balance{InvoiceID: id.New(), Date: time.Now().AddDate(0, -2, 0), Outstanding: types.MustMoney("0")}

	s := allocation.SuggestFIFO(types.MustMoney("500"), []allocation.Balance{mid, paid, old})
	require.Len(t, s.Allocations, 2)
	assert.Equal(t, old.InvoiceID, s.Allocations[0].TargetInvoiceID)
	assert.True(t, s.Allocations[0].AllocatedAmount.Equal(types.MustMoney("300")))
	assert.True(t, s.Allocations[1].AllocatedAmount.Equal(types.MustMoney("200")))
	assert.True(t, s.Remaining.IsZero())

	s = allocation.SuggestFIFO(types.MustMoney("1000"), []allocation.Balance{old})
	assert.True(t, s.Remaining.Equal(types.MustMoney("700")))
}
