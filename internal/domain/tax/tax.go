// Package tax computes tax base, tax amount and grand total for a set of lines.
package tax

import (
	"fmt"

	"github.com/shopspring/decimal"

	"docflow/internal/core/apperror"
	"docflow/internal/core/types"
)

// Mode selects how line prices relate to tax.
type Mode string

const (
	// Exclude adds tax on top of the line subtotal.
	Exclude Mode = "Exclude"
	// Include treats the subtotal as gross with tax embedded.
	Include Mode = "Include"
	// NoTax computes no tax at all.
	NoTax Mode = "NoTax"
)

// ParseMode validates a mode name. Empty input yields def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch Mode(s) {
	case "":
		return def, nil
	case Exclude, Include, NoTax:
		return Mode(s), nil
	}
	return "", apperror.NewFieldValidation("taxMode", fmt.Sprintf("unknown tax mode %q", s))
}

// DefaultRate is the VAT rate used when configuration sets none.
var DefaultRate = decimal.RequireFromString("0.11")

var hundred = decimal.NewFromInt(100)

// Line is the tax-relevant projection of a document line.
type Line struct {
	Quantity    types.Quantity
	UnitPrice   types.Money
	DiscountPct types.Money
}

// Result holds the unrounded totals of a line set.
type Result struct {
	Subtotal   types.Money `json:"subtotal"`
	TaxBase    types.Money `json:"taxBase"`
	TaxAmount  types.Money `json:"taxAmount"`
	GrandTotal types.Money `json:"grandTotal"`
}

// Calculator applies a single configured rate.
type Calculator struct {
	rate decimal.Decimal
}

// NewCalculator creates a calculator for rate (0.11 means 11%).
func NewCalculator(rate decimal.Decimal) *Calculator {
	return &Calculator{rate: rate}
}

// Rate returns the configured rate.
func (c *Calculator) Rate() decimal.Decimal {
	return c.rate
}

// LineTotal returns quantity × unitPrice × (1 − discountPct/100).
func LineTotal(l Line) types.Money {
	factor := decimal.NewFromInt(1).Sub(l.DiscountPct.Div(hundred))
	return l.Quantity.Decimal().Mul(l.UnitPrice).Mul(factor)
}

// Compute returns totals for lines under mode. No rounding is applied.
func (c *Calculator) Compute(lines []Line, mode Mode) Result {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(LineTotal(l))
	}

	switch mode {
	case Exclude:
		taxAmount := subtotal.Mul(c.rate)
		return Result{
			Subtotal:   subtotal,
			TaxBase:    subtotal,
			TaxAmount:  taxAmount,
			GrandTotal: subtotal.Add(taxAmount),
		}
	case Include:
		base := subtotal.Div(decimal.NewFromInt(1).Add(c.rate))
		return Result{
			Subtotal:   subtotal,
			TaxBase:    base,
			TaxAmount:  subtotal.Sub(base),
			GrandTotal: subtotal,
		}
	default:
		return Result{
			Subtotal:   subtotal,
			TaxBase:    subtotal,
			TaxAmount:  decimal.Zero,
			GrandTotal: subtotal,
		}
	}
}
