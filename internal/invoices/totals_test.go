package invoices

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
)

func TestComputeTotalsAppliesTax(t *testing.T) {
	lines := []models.InvoiceLine{
		NewLine(models.Product{Price: decimal.NewFromInt(15000)}, 2),
		NewLine(models.Product{Price: decimal.NewFromInt(25000)}, 1),
	}
	totals := ComputeTotals(lines, decimal.RequireFromString("0.19"), decimal.Zero)

	cases := map[string]struct {
		got  decimal.Decimal
		want int64
	}{
		"subtotal": {totals.Subtotal, 55000},
		"tax":      {totals.TaxAmount, 10450},
		"discount": {totals.DiscountAmount, 0},
		"total":    {totals.Total, 65450},
	}
	for name, tc := range cases {
		if !tc.got.Equal(decimal.NewFromInt(tc.want)) {
			t.Fatalf("%s: expected %d, got %s", name, tc.want, tc.got)
		}
	}
	if !lines[0].TotalPrice.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("expected line total 30000, got %s", lines[0].TotalPrice)
	}
}

func TestComputeTotalsRoundsTaxToCents(t *testing.T) {
	lines := []models.InvoiceLine{NewLine(models.Product{Price: decimal.RequireFromString("10.55")}, 1)}
	totals := ComputeTotals(lines, decimal.RequireFromString("0.19"), decimal.Zero)
	if !totals.TaxAmount.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("expected tax 2.00, got %s", totals.TaxAmount)
	}
	if !totals.Total.Equal(totals.Subtotal.Add(totals.TaxAmount)) {
		t.Fatalf("total must equal subtotal + tax")
	}
}

func TestComputeTotalsSubtractsDiscount(t *testing.T) {
	lines := []models.InvoiceLine{NewLine(models.Product{Price: decimal.NewFromInt(1000)}, 1)}
	totals := ComputeTotals(lines, decimal.Zero, decimal.NewFromInt(100))
	if !totals.Total.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("expected 900, got %s", totals.Total)
	}
}

func TestFormatNumberPads(t *testing.T) {
	cases := []struct {
		value int64
		width int
		want  string
	}{
		{1, 5, "00001"},
		{42, 5, "00042"},
		{123456, 5, "123456"},
		{7, 0, "00007"},
	}
	for _, tc := range cases {
		if got := FormatNumber(tc.value, tc.width); got != tc.want {
			t.Fatalf("FormatNumber(%d,%d) = %q, want %q", tc.value, tc.width, got, tc.want)
		}
	}
}

func TestDemoInvoiceArithmetic(t *testing.T) {
	view := Demo(fixedNow, decimal.RequireFromString("0.19"), "Gracias por su compra en Farmachelo")
	if view.Invoice.Subtotal != 55000 || view.Invoice.TaxAmount != 10450 || view.Invoice.TotalAmount != 65450 {
		t.Fatalf("unexpected demo totals: %+v", view.Invoice)
	}
	if len(view.Invoice.Items) != 2 || !view.Invoice.Items[1].RequiresPrescription {
		t.Fatalf("expected two demo lines with a prescription item")
	}
}
