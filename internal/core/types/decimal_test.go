package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantity_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Quantity
	}{
		{`10`, NewQuantity(10)},
		{`"2.5"`, Quantity(25_000)},
		{`0.1234`, Quantity(1_234)},
		{`1.5e2`, NewQuantity(150)},
		{`922337203685477.5807`, Quantity(math.MaxInt64)},
		{`-3.1`, Quantity(-31_000)},
		{`null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var q Quantity
			require.NoError(t, json.Unmarshal([]byte(tt.in), &q))
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestQuantity_DecimalConversion(t *testing.T) {
	q := MustQuantity("12.3456")
	assert.True(t, q.Decimal().Equal(decimal.RequireFromString("12.3456")))
	assert.Equal(t, q, QuantityFromDecimal(q.Decimal()))
	assert.Equal(t, "12.3456", q.String())
}

func TestQuantity_ClampZero(t *testing.T) {
	assert.Equal(t, Quantity(0), NewQuantity(-2).ClampZero())
	assert.Equal(t, NewQuantity(2), NewQuantity(2).ClampZero())
	assert.Equal(t, NewQuantity(1), MinQuantity(NewQuantity(1), NewQuantity(3)))
}

func TestQuantity_UnmarshalJSON_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"overflow to positive", `2000000000000000`},
		{"overflow to negative", `922337203685478`},
		{"just past max", `922337203685477.5808`},
		{"negative overflow", `-2000000000000000`},
		{"five fractional digits", `"1.23456"`},
		{"five fractional digits number", `0.12345`},
		{"exponent with extra precision", `1e-5`},
		{"exponent overflow", `1e20`},
		{"double sign", `"-+5"`},
		{"not a number", `"ten"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q Quantity
			assert.Error(t, json.Unmarshal([]byte(tt.in), &q))
		})
	}
}
