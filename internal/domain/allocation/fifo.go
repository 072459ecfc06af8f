package allocation

import (
	"bytes"
	"slices"

	"github.com/shopspring/decimal"

	"docflow/internal/core/types"
	"docflow/internal/domain/document"
)

// Suggestion is a proposed allocation set.
type Suggestion struct {
	Allocations []document.Allocation `json:"allocations"`
	Allocated   types.Money           `json:"allocated"`
	Remaining   types.Money           `json:"remaining"`
}

// SuggestFIFO spreads amount over balances, oldest invoice first.
func SuggestFIFO(amount types.Money, balances []Balance) Suggestion {
	ordered := slices.Clone(balances)
	slices.SortStableFunc(ordered, func(a, b Balance) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return bytes.Compare(a.InvoiceID[:], b.InvoiceID[:])
	})

	s := Suggestion{Allocated: decimal.Zero, Remaining: amount}
	for _, b := range ordered {
		if !s.Remaining.IsPositive() {
			break
		}
		if !b.Outstanding.IsPositive() {
			continue
		}
		take := decimal.Min(s.Remaining, b.Outstanding)
		s.Allocations = append(s.Allocations, document.Allocation{
			TargetInvoiceID: b.InvoiceID,
			AllocatedAmount: take,
		})
		s.Allocated = s.Allocated.Add(take)
		s.Remaining = s.Remaining.Sub(take)
	}
	return s
}
