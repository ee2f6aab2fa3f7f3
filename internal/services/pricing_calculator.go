package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/petcorner/storefront/internal/domain"
)

const moneyPlaces = 2

// StorefrontTaxRate is the VAT rate applied to every product sold by the storefront.
var StorefrontTaxRate = decimal.RequireFromString("0.20")

// OrderTotals aggregates already-rounded line values.
type OrderTotals struct {
	SubtotalExclTax decimal.Decimal
	TaxTotal        decimal.Decimal
}

// PricingCalculator converts tax-inclusive unit prices into exclusive/tax breakdowns.
// Rounding happens per unit (half away from zero) before quantities are applied, which is the
// line semantics the order repository expects. Aggregates therefore may drift from an exact
// computation by at most 0.01 per line.
type PricingCalculator struct{}

// Breakdown prices a single line.
func (PricingCalculator) Breakdown(unitPriceInclTax decimal.Decimal, qty int, taxRate decimal.Decimal) (domain.OrderLine, error) {
	if unitPriceInclTax.IsNegative() {
		return domain.OrderLine{}, fmt.Errorf("%w: unit price %s is negative", ErrInvalidPrice, unitPriceInclTax)
	}
	if taxRate.IsNegative() {
		return domain.OrderLine{}, fmt.Errorf("%w: tax rate %s is negative", ErrInvalidPrice, taxRate)
	}
	if qty < 1 {
		return domain.OrderLine{}, fmt.Errorf("%w: quantity %d", ErrInvalidQuantity, qty)
	}

	divisor := decimal.NewFromInt(1).Add(taxRate)
	unitExcl := unitPriceInclTax.Div(divisor).Round(moneyPlaces)
	taxPerUnit := unitPriceInclTax.Sub(unitExcl).Round(moneyPlaces)
	quantity := decimal.NewFromInt(int64(qty))

	return domain.OrderLine{
		Quantity:         qty,
		UnitPriceExclTax: unitExcl,
		UnitPriceInclTax: unitPriceInclTax,
		TaxAmountPerUnit: taxPerUnit,
		LineTotalExclTax: unitExcl.Mul(quantity).Round(moneyPlaces),
		LineTotalTax:     taxPerUnit.Mul(quantity).Round(moneyPlaces),
	}, nil
}

// Aggregate sums line totals without re-deriving them from raw prices.
func (PricingCalculator) Aggregate(lines []domain.OrderLine) OrderTotals {
	totals := OrderTotals{SubtotalExclTax: decimal.Zero, TaxTotal: decimal.Zero}
	for _, line := range lines {
		totals.SubtotalExclTax = totals.SubtotalExclTax.Add(line.LineTotalExclTax)
		totals.TaxTotal = totals.TaxTotal.Add(line.LineTotalTax)
	}
	return totals
}
