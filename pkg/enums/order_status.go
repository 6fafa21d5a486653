package enums

// OrderStatus tracks the lifecycle of a customer order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validOrderStatuses = oneOf[OrderStatus]{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// fulfilmentRank orders the forward path; cancelled sits outside it.
var fulfilmentRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusPaid:       1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	return validOrderStatuses.has(s)
}

// IsSettled reports whether payment has been captured for the order.
func (s OrderStatus) IsSettled() bool {
	rank, ok := fulfilmentRank[s]
	return ok && rank >= fulfilmentRank[OrderStatusPaid]
}

// CanTransitionTo reports whether moving from s to next keeps the order
// moving forward. Cancellation is allowed from any state before delivery.
// Re-applying the current status is a no-op and allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	if s == OrderStatusCancelled || s == OrderStatusDelivered {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	return fulfilmentRank[next] > fulfilmentRank[s]
}

// SettledOrderStatuses lists the statuses counted as paid revenue.
func SettledOrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered}
}

// AllOrderStatuses returns every known order status.
func AllOrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return validOrderStatuses.parse("order status", value)
}
