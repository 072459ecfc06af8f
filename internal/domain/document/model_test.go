package document

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	"docflow/internal/core/entity"
	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/tax"
)

var testDate = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func newSalesOrder(t *testing.T) *Document {
	t.Helper()
	doc, err := New(KindSalesOrder, testDate)
	require.NoError(t, err)
	doc.PartnerID = id.Ptr(id.New())
	doc.Lines = []Line{{
		ItemID:    id.Ptr(id.New()),
		Quantity:  types.NewQuantity(20),
		UnitPrice: types.MustMoney("10"),
	}}
	return doc
}

func TestNew_UsesFamilyDefaults(t *testing.T) {
	doc, err := New(KindReceiving, testDate)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, doc.Status)
	assert.Equal(t, "RCV", doc.TransactionTypeCode)
	assert.Equal(t, tax.NoTax, doc.TaxMode)

	_, err = New("Voucher", testDate)
	assert.True(t, apperror.IsValidation(err))
}

func TestRecalculate(t *testing.T) {
	doc := newSalesOrder(t)
	doc.Lines = append(doc.Lines, Line{Quantity: types.NewQuantity(1), UnitPrice: types.MustMoney("50"), DiscountPct: types.MustMoney("50")})
	doc.Recalculate(tax.NewCalculator(tax.DefaultRate))

	assert.Equal(t, 2, doc.Lines[1].LineNo)
	assert.False(t, id.IsNil(doc.Lines[1].ID))
	assert.True(t, doc.Lines[0].LineTotal.Equal(types.MustMoney("200")))
	assert.True(t, doc.Lines[1].LineTotal.Equal(types.MustMoney("25")))
	assert.True(t, doc.Subtotal.Equal(types.MustMoney("225")))
	assert.True(t, doc.GrandTotal.Equal(types.MustMoney("249.75")), doc.GrandTotal.String())
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(d *Document)
		field  string
	}{
		{"valid", func(d *Document) {}, ""},
		{"missing partner", func(d *Document) { d.PartnerID = nil }, "partnerId"},
		{"no lines", func(d *Document) { d.Lines = nil }, "lines"},
		{"zero quantity", func(d *Document) { d.Lines[0].Quantity = 0 }, "lines"},
		{"discount above 100", func(d *Document) { d.Lines[0].DiscountPct = types.MustMoney("100.5") }, "lines"},
		{"allocation on order", func(d *Document) { d.AllocateToInvoice = true }, "allocateToInvoice"},
		{"stray allocations", func(d *Document) {
			d.Allocations = []Allocation{{TargetInvoiceID: id.New(), AllocatedAmount: types.MustMoney("1")}}
		}, "allocations"},
		{"conversion role on order", func(d *Document) { d.Lines[0].Role = RoleInput }, "lines"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newSalesOrder(t)
			tt.mutate(doc)
			err := doc.Validate(ctx)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, appErr.Details["field"])
		})
	}
}

func TestValidate_StockKindNeedsLocationAndItems(t *testing.T) {
	doc, err := New(KindInventoryAdjustmentIn, testDate)
	require.NoError(t, err)
	doc.CounterAccountID = id.Ptr(id.New())
	doc.Lines = []Line{{Quantity: types.NewQuantity(1), UnitPrice: types.MustMoney("1")}}

	err = doc.Validate(context.Background())
	appErr, _ := apperror.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "locationId", appErr.Details["field"])

	doc.LocationID = id.Ptr(id.New())
	err = doc.Validate(context.Background())
	appErr, _ = apperror.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "lines", appErr.Details["field"])
}

func TestValidate_ConversionNeedsBothSides(t *testing.T) {
	doc, err := New(KindItemConversion, testDate)
	require.NoError(t, err)
	doc.LocationID = id.Ptr(id.New())
	doc.CounterAccountID = id.Ptr(id.New())
	doc.Lines = []Line{{ItemID: id.Ptr(id.New()), Role: RoleInput, Quantity: types.NewQuantity(1)}}
	assert.True(t, apperror.IsValidation(doc.Validate(context.Background())))

	doc.Lines = append(doc.Lines, Line{ItemID: id.Ptr(id.New()), Role: RoleOutput, Quantity: types.NewQuantity(2)})
	assert.NoError(t, doc.Validate(context.Background()))
}

func TestLine_IncomingUnitCost(t *testing.T) {
	l := Line{UnitPrice: types.MustMoney("200"), DiscountPct: types.MustMoney("25")}
	assert.True(t, l.IncomingUnitCost().Equal(types.MustMoney("150")))

	cost := types.MustMoney("99")
	l.UnitCost = &cost
	assert.True(t, l.IncomingUnitCost().Equal(cost))
}

func TestClone_IsDeep(t *testing.T) {
	doc := newSalesOrder(t)
	c := doc.Clone()
	c.Lines[0].Quantity = types.NewQuantity(1)
	*c.PartnerID = id.New()
	assert.Equal(t, types.NewQuantity(20), doc.Lines[0].Quantity)
	assert.NotEqual(t, *doc.PartnerID, *c.PartnerID)
}

func TestProfiles(t *testing.T) {
	p, err := ProfileOf(KindShipment)
	require.NoError(t, err)
	assert.Equal(t, TwoState, p.Approval)
	assert.Equal(t, entity.StatusDraft, p.UnpostTarget())
	assert.True(t, p.CanDeriveFrom(KindSalesOrder))

	p, err = ProfileOf(KindARCreditAdjustment)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, p.UnpostTarget())
	assert.Equal(t, KindARInvoice, p.AllocatesAgainst)

	assert.Equal(t, []Kind{KindAPInvoice}, ChildKinds(KindReceiving))
	assert.Len(t, Kinds(), 14)
}

func TestProfiles_ApprovalShape(t *testing.T) {
	twoState := map[Kind]bool{
		KindReceiving:              true,
		KindShipment:               true,
		KindInventoryAdjustmentIn:  true,
		KindInventoryAdjustmentOut: true,
		KindItemConversion:         true,
	}
	for _, k := range Kinds() {
		t.Run(string(k), func(t *testing.T) {
			p, err := ProfileOf(k)
			require.NoError(t, err)
			if twoState[k] {
				assert.Equal(t, TwoState, p.Approval)
				assert.Equal(t, entity.StatusDraft, p.UnpostTarget())
				return
			}
			assert.Equal(t, ThreeState, p.Approval)
			assert.Equal(t, entity.StatusApproved, p.UnpostTarget())
		})
	}
}
