package invoices

import (
	"time"

	"github.com/farmachelo/pharmacy-backend/internal/orders"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// InvoiceDTO is the transport shape of an invoice.
type InvoiceDTO struct {
	ID                   string                  `json:"id"`
	OrderID              string                  `json:"order_id"`
	UserID               string                  `json:"user_id"`
	InvoiceNumber        string                  `json:"invoice_number"`
	IssueDate            time.Time               `json:"issue_date"`
	DueDate              time.Time               `json:"due_date"`
	Items                []orders.InvoiceLineDTO `json:"items"`
	Subtotal             float64                 `json:"subtotal"`
	TaxAmount            float64                 `json:"tax_amount"`
	DiscountAmount       float64                 `json:"discount_amount"`
	TotalAmount          float64                 `json:"total_amount"`
	Currency             string                  `json:"currency"`
	Status               enums.InvoiceStatus     `json:"status"`
	PaymentMethod        string                  `json:"payment_method"`
	PaymentTransactionID string                  `json:"payment_transaction_id"`
	CustomerInfo         models.CustomerInfo     `json:"customer_info"`
	ShippingInfo         models.CustomerInfo     `json:"shipping_info"`
	Notes                string                  `json:"notes,omitempty"`
}

func FromModel(inv *models.Invoice) *InvoiceDTO {
	if inv == nil {
		return nil
	}
	items := make([]orders.InvoiceLineDTO, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		items = append(items, orders.InvoiceLineFromModel(line))
	}
	return &InvoiceDTO{
		ID:                   inv.ID,
		OrderID:              inv.OrderID,
		UserID:               inv.UserID.String(),
		InvoiceNumber:        inv.InvoiceNumber,
		IssueDate:            inv.IssueDate,
		DueDate:              inv.DueDate,
		Items:                items,
		Subtotal:             inv.Subtotal.InexactFloat64(),
		TaxAmount:            inv.TaxAmount.InexactFloat64(),
		DiscountAmount:       inv.DiscountAmount.InexactFloat64(),
		TotalAmount:          inv.TotalAmount.InexactFloat64(),
		Currency:             inv.Currency,
		Status:               inv.Status,
		PaymentMethod:        inv.PaymentMethod,
		PaymentTransactionID: inv.PaymentTransactionID,
		CustomerInfo:         inv.CustomerInfo,
		ShippingInfo:         inv.ShippingInfo,
		Notes:                inv.Notes,
	}
}

func FromModels(rows []models.Invoice) []InvoiceDTO {
	out := make([]InvoiceDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

// CustomerDTO is the buyer block attached to an invoice view.
type CustomerDTO struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func customerFromUser(user *models.User) *CustomerDTO {
	if user == nil {
		return nil
	}
	info := user.CustomerInfo()
	return &CustomerDTO{Name: info.Name, Email: info.Email, Phone: info.Phone, Address: info.Address}
}

// View is an invoice with its order and buyer.
type View struct {
	Invoice  *InvoiceDTO      `json:"invoice"`
	Order    *orders.OrderDTO `json:"order,omitempty"`
	Customer *CustomerDTO     `json:"customer,omitempty"`
}

// StatsDTO summarizes invoicing volume.
type StatsDTO struct {
	TotalInvoices   int64   `json:"total_invoices"`
	MonthlyInvoices int64   `json:"monthly_invoices"`
	TotalRevenue    float64 `json:"total_revenue"`
	MonthlyRevenue  float64 `json:"monthly_revenue"`
}

// RepairResult reports the outcome of an invoice repair.
type RepairResult struct {
	OrderID       string `json:"order_id"`
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	Created       bool   `json:"created"`
}

// CreateInput requests an invoice for a paid order.
type CreateInput struct {
	OrderID              string
	PaymentTransactionID string
	PaymentMethod        string
}
