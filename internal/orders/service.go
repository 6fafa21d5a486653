package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/internal/payments"
	"github.com/farmachelo/pharmacy-backend/internal/users"
	pkgAuth "github.com/farmachelo/pharmacy-backend/pkg/auth"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox/payloads"
)

const statusUpdatedMessage = "Estado del pedido actualizado exitosamente"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines order reads and admin transitions.
type Service interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error)
	Get(ctx context.Context, principal pkgAuth.Principal, orderID string) (*OrderDTO, error)
	AdminList(ctx context.Context, filter ListFilter) ([]AdminOrderDTO, error)
	AdminGet(ctx context.Context, orderID string) (*AdminOrderDetailDTO, error)
	Stats(ctx context.Context) (*StatsDTO, error)
	UpdateStatus(ctx context.Context, principal pkgAuth.Principal, orderID string, status enums.OrderStatus) (*StatusUpdateDTO, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Orders   *Repository
	Users    *users.Repository
	Products *catalog.Repository
	Payments *payments.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Now      func() time.Time
}

type service struct {
	orders   *Repository
	users    *users.Repository
	products *catalog.Repository
	payments *payments.Repository
	tx       txRunner
	outbox   outboxPublisher
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		orders:   params.Orders,
		users:    params.Users,
		products: params.Products,
		payments: params.Payments,
		tx:       params.Tx,
		outbox:   params.Outbox,
		now:      now,
	}, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error) {
	rows, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModels(rows), nil
}

func (s *service) Get(ctx context.Context, principal pkgAuth.Principal, orderID string) (*OrderDTO, error) {
	order, err := s.load(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	if !principal.CanAccessOwnerResource(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return FromModel(order), nil
}

func (s *service) AdminList(ctx context.Context, filter ListFilter) ([]AdminOrderDTO, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	rows, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	userIDs := make([]uuid.UUID, 0, len(rows))
	productIDs := make([]uuid.UUID, 0)
	for _, order := range rows {
		userIDs = append(userIDs, order.UserID)
		for _, line := range order.Lines {
			productIDs = append(productIDs, line.ProductID)
		}
	}
	owners, err := s.users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	out := make([]AdminOrderDTO, 0, len(rows))
	for i := range rows {
		order := &rows[i]
		info := UserInfoDTO{Name: unknownUserName}
		if user, ok := owners[order.UserID]; ok {
			info = UserInfoDTO{Name: user.Name, Email: user.Email}
		}
		out = append(out, AdminOrderDTO{
			OrderDTO:     *FromModel(order),
			UserInfo:     info,
			ItemsDetails: itemDetails(order.Lines, products, false),
			InvoiceInfo:  invoiceInfo(order, false),
		})
	}
	return out, nil
}

func (s *service) AdminGet(ctx context.Context, orderID string) (*AdminOrderDetailDTO, error) {
	order, err := s.load(ctx, s.orders, orderID)
	if err != nil {
		return nil, err
	}

	info := UserInfoDTO{Name: unknownUserName}
	user, err := s.users.FindByID(ctx, order.UserID)
	switch {
	case err == nil:
		info = UserInfoDTO{ID: &user.ID, Name: user.Name, Email: user.Email, Phone: user.Phone, Address: user.Address}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	productIDs := make([]uuid.UUID, 0, len(order.Lines))
	for _, line := range order.Lines {
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	detail := &AdminOrderDetailDTO{
		AdminOrderDTO: AdminOrderDTO{
			OrderDTO:     *FromModel(order),
			UserInfo:     info,
			ItemsDetails: itemDetails(order.Lines, products, true),
			InvoiceInfo:  invoiceInfo(order, true),
		},
	}
	if order.PaymentTransactionID != nil {
		txn, err := s.payments.FindByTransactionID(ctx, *order.PaymentTransactionID)
		switch {
		case err == nil:
			detail.PaymentTransaction = payments.FromModel(txn)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}
	return detail, nil
}

func (s *service) Stats(ctx context.Context) (*StatsDTO, error) {
	counts, err := s.orders.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	settled := enums.SettledOrderStatuses()
	total, err := s.orders.Revenue(ctx, settled, nil)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthly, err := s.orders.Revenue(ctx, settled, &monthStart)
	if err != nil {
		return nil, err
	}

	stats := &StatsDTO{
		Pending:        counts[enums.OrderStatusPending],
		Paid:           counts[enums.OrderStatusPaid],
		Processing:     counts[enums.OrderStatusProcessing],
		Shipped:        counts[enums.OrderStatusShipped],
		Delivered:      counts[enums.OrderStatusDelivered],
		Cancelled:      counts[enums.OrderStatusCancelled],
		TotalRevenue:   total.Total.InexactFloat64(),
		MonthlyRevenue: monthly.Total.InexactFloat64(),
		MonthlyOrders:  monthly.Count,
	}
	for _, count := range counts {
		stats.TotalOrders += count
	}
	return stats, nil
}

func (s *service) UpdateStatus(ctx context.Context, principal pkgAuth.Principal, orderID string, status enums.OrderStatus) (*StatusUpdateDTO, error) {
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status == status {
			updated = order
			return nil
		}
		if !order.Status.CanTransitionTo(status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
				WithDetails(map[string]any{"from": order.Status, "to": status})
		}
		if err := repo.UpdateStatus(ctx, order.ID, order.Status, status); err != nil {
			return err
		}

		from := order.Status
		order.Status = status
		updated = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ID: principal.ID, Kind: principal.Kind},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				FromStatus: from,
				ToStatus:   status,
				ChangedBy:  principal.ID,
				ChangedAt:  s.now().UTC(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &StatusUpdateDTO{Message: statusUpdatedMessage, Order: FromModel(updated)}, nil
}

func (s *service) load(ctx context.Context, repo *Repository, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return order, nil
}

func itemDetails(lines []models.OrderLine, products map[uuid.UUID]models.Product, withDescription bool) []ItemDetailDTO {
	out := make([]ItemDetailDTO, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		unit := line.UnitPrice
		if unit.IsZero() {
			unit = product.Price
		}
		item := ItemDetailDTO{
			ProductID:            line.ProductID,
			Name:                 product.Name,
			Quantity:             line.Quantity,
			UnitPrice:            unit.InexactFloat64(),
			TotalPrice:           unit.Mul(decimalFromInt(line.Quantity)).InexactFloat64(),
			RequiresPrescription: product.RequiresPrescription,
		}
		if withDescription {
			item.Description = product.Description
		}
		out = append(out, item)
	}
	return out
}

func invoiceInfo(order *models.Order, full bool) *InvoiceInfoDTO {
	if !order.Invoiced() {
		return nil
	}
	info := &InvoiceInfoDTO{InvoiceID: order.ID, InvoiceNumber: *order.InvoiceNumber}
	if full {
		total := order.TotalAmount.InexactFloat64()
		if order.Subtotal.Valid {
			total = order.Subtotal.Decimal.Add(order.TaxAmount.Decimal).Sub(order.DiscountAmount.Decimal).InexactFloat64()
		}
		info.IssueDate = order.InvoiceDate
		info.PaymentMethod = order.PaymentMethod
		info.TotalAmount = &total
		info.CustomerInfo = order.CustomerInfo
	}
	return info
}
