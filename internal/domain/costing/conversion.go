package costing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"docflow/internal/core/types"
)

// DistributeConversionCost spreads totalInputCost over outputs in proportion
// to quantity. Output i carries totalInputCost / ΣQ × Q_i, so every output
// gets the same unit cost totalInputCost / ΣQ.
func DistributeConversionCost(totalInputCost types.Money, outputQty []types.Quantity) []types.Money {
	out := make([]types.Money, len(outputQty))
	sum := types.Quantity(0)
	for _, q := range outputQty {
		sum += q
	}
	if sum <= 0 {
		for i := range out {
			out[i] = decimal.Zero
		}
		return out
	}

	unit := totalInputCost.Div(sum.Decimal())
	for i := range out {
		out[i] = unit
	}
	return out
}

// ConversionVariance compares input and output value of a conversion.
// A mismatch is reported as a warning, never as an error.
func ConversionVariance(totalInput, totalOutput types.Money) (variance types.Money, warning string) {
	variance = totalOutput.Sub(totalInput)
	if variance.IsZero() {
		return variance, ""
	}
	return variance, fmt.Sprintf("conversion output value %s differs from input value %s by %s",
		totalOutput.String(), totalInput.String(), variance.String())
}
