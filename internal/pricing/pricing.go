// Package pricing computes sale line amounts under the fixed IVA policy.
package pricing

import (
	"github.com/shopspring/decimal"

	"bjbyte/backend/internal/domain"
)

// TaxRate is the IVA rate applied to non-exempt products.
var TaxRate = decimal.RequireFromString("0.19")

type LineAmounts struct {
	Subtotal domain.Money `json:"subtotal"`
	Tax      domain.Money `json:"tax"`
	Total    domain.Money `json:"total"`
}

// ComputeLine returns subtotal, tax and total for quantity units at unitPrice.
// Callers reject quantity <= 0 before calling.
func ComputeLine(unitPrice domain.Money, quantity int, exempt bool) LineAmounts {
	subtotal := domain.RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
	tax := decimal.Zero
	if !exempt {
		tax = domain.RoundMoney(subtotal.Mul(TaxRate))
	}
	return LineAmounts{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// Sum adds line amounts component-wise.
func Sum(lines ...LineAmounts) LineAmounts {
	total := LineAmounts{Subtotal: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero}
	for _, line := range lines {
		total.Subtotal = total.Subtotal.Add(line.Subtotal)
		total.Tax = total.Tax.Add(line.Tax)
		total.Total = total.Total.Add(line.Total)
	}
	return total
}
