package invoices

import (
	"github.com/shopspring/decimal"

	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
)

// InvoiceTotals are the amounts of an invoice. Total = Subtotal + TaxAmount - DiscountAmount.
type InvoiceTotals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
}

// NewLine snapshots product at its current price.
func NewLine(product models.Product, quantity int) models.InvoiceLine {
	return models.InvoiceLine{
		ProductID:            product.ID,
		Name:                 product.Name,
		Description:          product.Description,
		Quantity:             quantity,
		UnitPrice:            product.Price,
		TotalPrice:           product.Price.Mul(decimal.NewFromInt(int64(quantity))),
		RequiresPrescription: product.RequiresPrescription,
	}
}

// ComputeTotals sums lines and applies rate. Tax is rounded to cents.
func ComputeTotals(lines []models.InvoiceLine, rate, discount decimal.Decimal) InvoiceTotals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.TotalPrice)
	}
	tax := subtotal.Mul(rate).Round(2)
	return InvoiceTotals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		Total:          subtotal.Add(tax).Sub(discount),
	}
}
