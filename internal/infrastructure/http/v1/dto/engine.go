package dto

import (
	"github.com/shopspring/decimal"

	"docflow/internal/core/id"
	"docflow/internal/core/types"
	"docflow/internal/domain/tax"
)

// TaxLineRequest is the tax-relevant part of a line.
type TaxLineRequest struct {
	Quantity    types.Quantity  `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	DiscountPct decimal.Decimal `json:"discountPct"`
}

// TaxComputeRequest asks for the totals of a line set.
type TaxComputeRequest struct {
	TaxMode string           `json:"taxMode" binding:"required"`
	Lines   []TaxLineRequest `json:"lines"`
}

// ToLines converts request lines to calculator input.
func (r *TaxComputeRequest) ToLines() []tax.Line {
	out := make([]tax.Line, 0, len(r.Lines))
	for _, l := range r.Lines {
		out = append(out, tax.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice, DiscountPct: l.DiscountPct})
	}
	return out
}

// TaxComputeResponse echoes the rate used with the totals.
type TaxComputeResponse struct {
	Rate decimal.Decimal `json:"rate"`
	tax.Result
}

// CostLayerResponse is the current state of an (item, location) pair.
type CostLayerResponse struct {
	ItemID          id.ID           `json:"itemId"`
	LocationID      id.ID           `json:"locationId"`
	QuantityOnHand  types.Quantity  `json:"quantityOnHand"`
	AverageUnitCost decimal.Decimal `json:"averageUnitCost"`
	Value           decimal.Decimal `json:"value"`
}

// DistributeCostRequest spreads a total input cost over output quantities.
type DistributeCostRequest struct {
	TotalInputCost   decimal.Decimal  `json:"totalInputCost"`
	OutputQuantities []types.Quantity `json:"outputQuantities" binding:"required,min=1"`
}

// DistributeCostResponse holds one unit cost per output.
type DistributeCostResponse struct {
	UnitCosts []decimal.Decimal `json:"unitCosts"`
}

// SuggestAllocationsRequest asks for a FIFO allocation proposal.
type SuggestAllocationsRequest struct {
	Kind      string          `json:"kind" binding:"required"`
	PartnerID id.ID           `json:"partnerId" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}
