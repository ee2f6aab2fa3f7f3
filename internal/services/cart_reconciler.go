package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/petcorner/storefront/internal/domain"
)

// CartReconciler merges a catalog snapshot with the customer's quantity map into priced lines.
type CartReconciler struct {
	taxRate decimal.Decimal
}

// NewCartReconciler returns a reconciler pricing every line at the storefront tax rate.
func NewCartReconciler() *CartReconciler {
	return &CartReconciler{taxRate: StorefrontTaxRate}
}

// Reconcile prices one line per product, preserving the input order. Quantities default to 1 when
// the map has no positive entry for the product, so every product yields a line. Neither argument
// is modified.
func (r *CartReconciler) Reconcile(products []domain.CatalogProduct, quantities domain.QuantityMap) ([]domain.OrderLine, error) {
	if len(products) == 0 {
		return nil, ErrEmptyCart
	}

	taxRate := StorefrontTaxRate
	if r != nil {
		taxRate = r.taxRate
	}

	lines := make([]domain.OrderLine, 0, len(products))
	for _, product := range products {
		line, err := (PricingCalculator{}).Breakdown(product.UnitPriceInclTax, quantities.Resolve(product.ID), taxRate)
		if err != nil {
			return nil, fmt.Errorf("cart: product %s: %w", product.ID, err)
		}
		line.ProductID = strings.TrimSpace(product.ID)
		line.Label = product.Label
		lines = append(lines, line)
	}
	return lines, nil
}
