package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmachelo/pharmacy-backend/internal/payments"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

const unknownUserName = "Usuario desconocido"

// LineDTO is a frozen order line.
type LineDTO struct {
	ProductID        uuid.UUID `json:"product_id"`
	Quantity         int       `json:"quantity"`
	PrescriptionFile *string   `json:"prescription_file,omitempty"`
	UnitPrice        float64   `json:"unit_price"`
}

// InvoiceLineDTO is an invoice line snapshot.
type InvoiceLineDTO struct {
	ProductID            uuid.UUID `json:"product_id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	Quantity             int       `json:"quantity"`
	UnitPrice            float64   `json:"unit_price"`
	TotalPrice           float64   `json:"total_price"`
	RequiresPrescription bool      `json:"requires_prescription"`
}

// OrderDTO is the customer-facing order shape.
type OrderDTO struct {
	ID                   string               `json:"id"`
	UserID               uuid.UUID            `json:"user_id"`
	Items                []LineDTO            `json:"items"`
	TotalAmount          float64              `json:"total_amount"`
	Status               enums.OrderStatus    `json:"status"`
	PaymentTransactionID *string              `json:"payment_transaction_id,omitempty"`
	Currency             string               `json:"currency"`
	PaymentMethod        *string              `json:"payment_method,omitempty"`
	InvoiceNumber        *string              `json:"invoice_number,omitempty"`
	InvoiceDate          *time.Time           `json:"invoice_date,omitempty"`
	InvoiceItems         []InvoiceLineDTO     `json:"invoice_items,omitempty"`
	Subtotal             *float64             `json:"subtotal,omitempty"`
	TaxAmount            *float64             `json:"tax_amount,omitempty"`
	DiscountAmount       *float64             `json:"discount_amount,omitempty"`
	CustomerInfo         *models.CustomerInfo `json:"customer_info,omitempty"`
	ShippingInfo         *models.CustomerInfo `json:"shipping_info,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

func FromModel(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	items := make([]LineDTO, 0, len(o.Lines))
	for _, line := range o.Lines {
		items = append(items, LineDTO{
			ProductID:        line.ProductID,
			Quantity:         line.Quantity,
			PrescriptionFile: line.PrescriptionFile,
			UnitPrice:        line.UnitPrice.InexactFloat64(),
		})
	}
	var invoiceItems []InvoiceLineDTO
	for _, line := range o.InvoiceLines {
		invoiceItems = append(invoiceItems, InvoiceLineFromModel(line))
	}
	return &OrderDTO{
		ID:                   o.ID,
		UserID:               o.UserID,
		Items:                items,
		TotalAmount:          o.TotalAmount.InexactFloat64(),
		Status:               o.Status,
		PaymentTransactionID: o.PaymentTransactionID,
		Currency:             o.Currency,
		PaymentMethod:        o.PaymentMethod,
		InvoiceNumber:        o.InvoiceNumber,
		InvoiceDate:          o.InvoiceDate,
		InvoiceItems:         invoiceItems,
		Subtotal:             nullFloat(o.Subtotal),
		TaxAmount:            nullFloat(o.TaxAmount),
		DiscountAmount:       nullFloat(o.DiscountAmount),
		CustomerInfo:         o.CustomerInfo,
		ShippingInfo:         o.ShippingInfo,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}

func FromModels(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

// InvoiceLineFromModel converts a stored invoice line.
func InvoiceLineFromModel(line models.InvoiceLine) InvoiceLineDTO {
	return InvoiceLineDTO{
		ProductID:            line.ProductID,
		Name:                 line.Name,
		Description:          line.Description,
		Quantity:             line.Quantity,
		UnitPrice:            line.UnitPrice.InexactFloat64(),
		TotalPrice:           line.TotalPrice.InexactFloat64(),
		RequiresPrescription: line.RequiresPrescription,
	}
}

func nullFloat(value decimal.NullDecimal) *float64 {
	if !value.Valid {
		return nil
	}
	f := value.Decimal.InexactFloat64()
	return &f
}

// UserInfoDTO summarizes the buyer on admin views.
type UserInfoDTO struct {
	ID      *uuid.UUID `json:"id,omitempty"`
	Name    string     `json:"name"`
	Email   string     `json:"email"`
	Phone   *string    `json:"phone,omitempty"`
	Address *string    `json:"address,omitempty"`
}

// ItemDetailDTO is an order line joined with catalog data.
type ItemDetailDTO struct {
	ProductID            uuid.UUID `json:"product_id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description,omitempty"`
	Quantity             int       `json:"quantity"`
	UnitPrice            float64   `json:"unit_price"`
	TotalPrice           float64   `json:"total_price"`
	RequiresPrescription bool      `json:"requires_prescription"`
}

// InvoiceInfoDTO references the invoice of an order.
type InvoiceInfoDTO struct {
	InvoiceID     string               `json:"invoice_id"`
	InvoiceNumber string               `json:"invoice_number"`
	IssueDate     *time.Time           `json:"issue_date,omitempty"`
	PaymentMethod *string              `json:"payment_method,omitempty"`
	TotalAmount   *float64             `json:"total_amount,omitempty"`
	CustomerInfo  *models.CustomerInfo `json:"customer_info,omitempty"`
}

// AdminOrderDTO is an order row on the back-office listing.
type AdminOrderDTO struct {
	OrderDTO
	UserInfo     UserInfoDTO     `json:"user_info"`
	ItemsDetails []ItemDetailDTO `json:"items_details"`
	InvoiceInfo  *InvoiceInfoDTO `json:"invoice_info,omitempty"`
}

// AdminOrderDetailDTO adds the payment record to the admin order view.
type AdminOrderDetailDTO struct {
	AdminOrderDTO
	PaymentTransaction *payments.TransactionDTO `json:"payment_transaction,omitempty"`
}

// StatsDTO summarizes order volume and revenue.
type StatsDTO struct {
	TotalOrders    int64   `json:"total_orders"`
	Pending        int64   `json:"pending"`
	Paid           int64   `json:"paid"`
	Processing     int64   `json:"processing"`
	Shipped        int64   `json:"shipped"`
	Delivered      int64   `json:"delivered"`
	Cancelled      int64   `json:"cancelled"`
	TotalRevenue   float64 `json:"total_revenue"`
	MonthlyRevenue float64 `json:"monthly_revenue"`
	MonthlyOrders  int64   `json:"monthly_orders"`
}

// StatusUpdateDTO is returned after an admin status change.
type StatusUpdateDTO struct {
	Message string    `json:"message"`
	Order   *OrderDTO `json:"order"`
}

func decimalFromInt(value int) decimal.Decimal {
	return decimal.NewFromInt(int64(value))
}
