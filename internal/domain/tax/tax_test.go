package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/internal/core/apperror"
	"docflow/internal/core/types"
)

func sampleLines() []Line {
	return []Line{
		{Quantity: types.NewQuantity(3), UnitPrice: types.MustMoney("100"), DiscountPct: decimal.Zero},
		{Quantity: types.MustQuantity("2.5"), UnitPrice: types.MustMoney("40"), DiscountPct: types.MustMoney("10")},
	}
}

func TestCompute_Modes(t *testing.T) {
	calc := NewCalculator(DefaultRate)

	tests := []struct {
		mode      Mode
		taxAmount string
		grand     string
		base      string
	}{
		{NoTax, "0", "390", "390"},
		{Exclude, "42.9", "432.9", "390"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			res := calc.Compute(sampleLines(), tt.mode)
			assert.True(t, res.Subtotal.Equal(types.MustMoney("390")), res.Subtotal.String())
			assert.True(t, res.TaxAmount.Equal(types.MustMoney(tt.taxAmount)), res.TaxAmount.String())
			assert.True(t, res.GrandTotal.Equal(types.MustMoney(tt.grand)), res.GrandTotal.String())
			assert.True(t, res.TaxBase.Equal(types.MustMoney(tt.base)), res.TaxBase.String())
		})
	}
}

func TestCompute_IncludeEmbedsTax(t *testing.T) {
	calc := NewCalculator(DefaultRate)
	res := calc.Compute(sampleLines(), Include)

	assert.True(t, res.GrandTotal.Equal(res.Subtotal))
	assert.True(t, res.GrandTotal.Sub(res.TaxAmount).Equal(res.TaxBase))

	back := res.TaxBase.Mul(decimal.NewFromInt(1).Add(DefaultRate))
	assert.True(t, back.Sub(res.Subtotal).Abs().LessThan(types.MustMoney("0.000001")), back.String())
}

func TestCompute_GrandMinusTaxIsBase(t *testing.T) {
	calc := NewCalculator(types.MustMoney("0.2"))
	for _, mode := range []Mode{Exclude, Include, NoTax} {
		res := calc.Compute(sampleLines(), mode)
		assert.True(t, res.GrandTotal.Sub(res.TaxAmount).Equal(res.TaxBase), mode)
	}
}

func TestCompute_ConfigurableRate(t *testing.T) {
	res := NewCalculator(types.MustMoney("0.2")).Compute(sampleLines(), Exclude)
	assert.True(t, res.TaxAmount.Equal(types.MustMoney("78")))
}

func TestCompute_Empty(t *testing.T) {
	res := NewCalculator(DefaultRate).Compute(nil, Exclude)
	assert.True(t, res.GrandTotal.IsZero())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("", Exclude)
	require.NoError(t, err)
	assert.Equal(t, Exclude, m)

	m, err = ParseMode("Include", Exclude)
	require.NoError(t, err)
	assert.Equal(t, Include, m)

	_, err = ParseMode("gross", Exclude)
	assert.True(t, apperror.IsValidation(err))
}
