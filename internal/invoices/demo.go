package invoices

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmachelo/pharmacy-backend/internal/orders"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// DemoID is the path value that selects the sample invoice.
const DemoID = "demo"

var (
	demoParacetamolID = uuid.MustParse("6f1c2b0e-0d55-4a53-9b1e-000000000001")
	demoAmoxicilinaID = uuid.MustParse("6f1c2b0e-0d55-4a53-9b1e-000000000002")
)

// Demo returns the fixed sample invoice used by storefront previews.
func Demo(now time.Time, rate decimal.Decimal, notes string) *View {
	lines := []models.InvoiceLine{
		NewLine(models.Product{
			ID:          demoParacetamolID,
			Name:        "Paracetamol 500mg",
			Description: "Analgésico y antipirético",
			Price:       decimal.NewFromInt(15000),
		}, 2),
		NewLine(models.Product{
			ID:                   demoAmoxicilinaID,
			Name:                 "Amoxicilina 250mg",
			Description:          "Antibiótico de amplio espectro",
			Price:                decimal.NewFromInt(25000),
			RequiresPrescription: true,
		}, 1),
	}
	totals := ComputeTotals(lines, rate, decimal.Zero)
	customer := models.CustomerInfo{
		Name:    "Cliente Demo",
		Email:   "cliente@demo.com",
		Phone:   "+57 300 123 4567",
		Address: "Calle Demo #123, Bogotá",
	}
	issued := now.UTC()
	invoice := &models.Invoice{
		ID:                   "inv_demo_001",
		OrderID:              "ord_demo_001",
		InvoiceNumber:        "FAC-DEMO-001",
		IssueDate:            issued,
		DueDate:              issued.AddDate(0, 0, 30),
		Lines:                lines,
		Subtotal:             totals.Subtotal,
		TaxAmount:            totals.TaxAmount,
		DiscountAmount:       totals.DiscountAmount,
		TotalAmount:          totals.Total,
		Currency:             "COP",
		Status:               enums.InvoiceStatusPaid,
		PaymentMethod:        DefaultPaymentMethod,
		PaymentTransactionID: "TXN_DEMO_001",
		CustomerInfo:         customer,
		ShippingInfo:         customer,
		Notes:                notes,
	}
	dto := FromModel(invoice)
	dto.UserID = "user_demo_001"
	return &View{
		Invoice: dto,
		Order: &orders.OrderDTO{
			ID:          invoice.OrderID,
			Status:      enums.OrderStatusPaid,
			TotalAmount: totals.Total.InexactFloat64(),
			Currency:    invoice.Currency,
			Items:       []orders.LineDTO{},
			CreatedAt:   issued,
			UpdatedAt:   issued,
		},
		Customer: &CustomerDTO{Name: customer.Name, Email: customer.Email, Phone: customer.Phone, Address: customer.Address},
	}
}
