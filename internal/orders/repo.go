// Package orders stores customer orders and exposes the order views used by
// customers and the back office.
package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
)

// DefaultListLimit caps admin listings when no limit is given.
const DefaultListLimit = 100

// ListFilter narrows the admin order listing.
type ListFilter struct {
	Status *enums.OrderStatus
	Limit  int
	Offset int
}

// InvoiceFields is the invoice snapshot denormalized onto an order.
type InvoiceFields struct {
	InvoiceNumber  string
	InvoiceDate    time.Time
	Lines          []models.InvoiceLine
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	PaymentMethod  string
	CustomerInfo   models.CustomerInfo
	ShippingInfo   models.CustomerInfo
	Notes          string
}

// Revenue aggregates order totals.
type Revenue struct {
	Total decimal.Decimal
	Count int64
}

// Repository persists orders.
type Repository struct {
	repo.Base
}

func NewRepository(base repo.Base) *Repository {
	return &Repository{Base: base}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.Bounded(ctx, "find order", func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	if order.Lines == nil {
		order.Lines = []models.OrderLine{}
	}
	return r.Bounded(ctx, "create order", func(db *gorm.DB) error {
		return db.Create(order).Error
	})
}

// payableStatuses are the states a capture may land on.
var payableStatuses = []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaid}

// MarkPaid records a capture against an existing order. Only status, the
// transaction reference and the total change, and only while the order is
// still pending or paid. An invoiced order keeps its invoice total.
func (r *Repository) MarkPaid(ctx context.Context, id, transactionID string, total decimal.Decimal) error {
	var affected int64
	err := r.Bounded(ctx, "mark order paid", func(db *gorm.DB) error {
		res := db.Model(&models.Order{ID: id}).
			Where("status IN ?", payableStatuses).
			Updates(map[string]any{
				"status":                 enums.OrderStatusPaid,
				"payment_transaction_id": transactionID,
				"total_amount":           gorm.Expr("CASE WHEN invoice_number IS NULL THEN ? ELSE total_amount END", total),
			})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be paid")
	}
	return nil
}

// UpdateStatus moves the order from one status to another. It fails with a
// state conflict when the stored status is no longer from.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to enums.OrderStatus) error {
	var affected int64
	err := r.Bounded(ctx, "update order status", func(db *gorm.DB) error {
		res := db.Model(&models.Order{ID: id}).
			Where("status = ?", from).
			Select("status", "updated_at").
			Updates(models.Order{Status: to})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently").
			WithDetails(map[string]any{"expected": from, "to": to})
	}
	return nil
}

// SaveInvoiceFields writes the invoice snapshot once and replaces the order
// total with the invoice total. It reports false when the order already
// carries an invoice number.
func (r *Repository) SaveInvoiceFields(ctx context.Context, id string, fields InvoiceFields) (bool, error) {
	var affected int64
	err := r.Bounded(ctx, "save order invoice", func(db *gorm.DB) error {
		number := fields.InvoiceNumber
		date := fields.InvoiceDate
		method := fields.PaymentMethod
		notes := fields.Notes
		customer := fields.CustomerInfo
		shipping := fields.ShippingInfo
		res := db.Model(&models.Order{ID: id}).
			Where("invoice_number IS NULL").
			Select("invoice_number", "invoice_date", "invoice_lines", "subtotal", "tax_amount",
				"discount_amount", "total_amount", "payment_method", "customer_info", "shipping_info", "invoice_notes", "updated_at").
			Updates(models.Order{
				InvoiceNumber:  &number,
				InvoiceDate:    &date,
				InvoiceLines:   fields.Lines,
				Subtotal:       decimal.NewNullDecimal(fields.Subtotal),
				TaxAmount:      decimal.NewNullDecimal(fields.TaxAmount),
				DiscountAmount: decimal.NewNullDecimal(fields.DiscountAmount),
				TotalAmount:    fields.Total,
				PaymentMethod:  &method,
				CustomerInfo:   &customer,
				ShippingInfo:   &shipping,
				InvoiceNotes:   &notes,
			})
		affected = res.RowsAffected
		return res.Error
	})
	return affected == 1, err
}

// ListByUser returns the user's orders, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.Bounded(ctx, "list user orders", func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error
	})
	return rows, err
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	limit := filter.Limit
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	var rows []models.Order
	err := r.Bounded(ctx, "list orders", func(db *gorm.DB) error {
		q := db.Model(&models.Order{})
		if filter.Status != nil {
			q = q.Where("status = ?", *filter.Status)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
		return q.Order("created_at DESC").Limit(limit).Find(&rows).Error
	})
	return rows, err
}

// StatusCounts returns the number of orders per status.
func (r *Repository) StatusCounts(ctx context.Context) (map[enums.OrderStatus]int64, error) {
	type row struct {
		Status enums.OrderStatus
		Count  int64
	}
	var rows []row
	err := r.Bounded(ctx, "count orders", func(db *gorm.DB) error {
		return db.Model(&models.Order{}).
			Select("status, COUNT(*) AS count").
			Group("status").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make(map[enums.OrderStatus]int64, len(rows))
	for _, rec := range rows {
		out[rec.Status] = rec.Count
	}
	return out, nil
}

// Revenue sums order totals in the given statuses, optionally since a time.
func (r *Repository) Revenue(ctx context.Context, statuses []enums.OrderStatus, since *time.Time) (Revenue, error) {
	var result struct {
		Total decimal.NullDecimal
		Count int64
	}
	err := r.Bounded(ctx, "sum revenue", func(db *gorm.DB) error {
		q := db.Model(&models.Order{}).
			Select("SUM(total_amount) AS total, COUNT(*) AS count").
			Where("status IN ?", statuses)
		if since != nil {
			q = q.Where("created_at >= ?", *since)
		}
		return q.Scan(&result).Error
	})
	if err != nil {
		return Revenue{}, err
	}
	out := Revenue{Count: result.Count, Total: decimal.Zero}
	if result.Total.Valid {
		out.Total = result.Total.Decimal
	}
	return out, nil
}

// ListUninvoicedSettled returns settled orders older than cutoff that never
// received an invoice number, oldest first.
func (r *Repository) ListUninvoicedSettled(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var rows []models.Order
	err := r.Bounded(ctx, "list uninvoiced orders", func(db *gorm.DB) error {
		return db.Where("status IN ?", enums.SettledOrderStatuses()).
			Where("invoice_number IS NULL").
			Where("created_at < ?", cutoff).
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error
	})
	return rows, err
}
