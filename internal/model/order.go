package model

import "time"

// Order statuses.  Orders are created PENDING and move to PAID on the
// payment collaborator's confirmation.  REFUNDED is reachable only from
// PAID through the refund workflow, never directly from PENDING;
// unpaid orders are CANCELLED instead.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRefunded  = "REFUNDED"
)

// Order groups the units bought in one purchase transaction and tracks
// the overall payment status and total amount.
//
// Fields:
//
//	ID               – primary key identifier.
//	Reference        – opaque order reference shared with the payment
//	                   collaborator (uuid).
//	UserID           – buyer.
//	EventID          – event the order belongs to.
//	Status           – one of the OrderStatus* constants.
//	TotalAmountCents – total charged in cents, after any discount.
//	CreatedAt        – creation timestamp.
//	UpdatedAt        – last update timestamp.
type Order struct {
	ID               uint64    // orders.id
	Reference        string    // orders.reference (uuid, unique)
	UserID           uint64    // orders.user_id
	EventID          uint64    // orders.event_id
	Status           string    // orders.status
	TotalAmountCents uint32    // orders.total_amount_cents
	CreatedAt        time.Time // orders.created_at
	UpdatedAt        time.Time // orders.updated_at
}

// OrderItem links an order to a ticket category with the quantity bought
// and the unit price at purchase time.  PriceAtTimeCents is a snapshot:
// it is written once inside the purchase transaction and never
// recomputed, so later price changes on the category cannot alter what
// the buyer was charged.
//
// Fields:
//
//	ID               – primary key identifier.
//	OrderID          – owning order.
//	CategoryID       – ticket category bought.
//	Quantity         – number of units.
//	PriceAtTimeCents – unit price in cents at purchase time.
//	CreatedAt        – creation timestamp.
type OrderItem struct {
	ID               uint64    // order_items.id
	OrderID          uint64    // order_items.order_id
	CategoryID       uint64    // order_items.category_id
	Quantity         uint32    // order_items.quantity
	PriceAtTimeCents uint32    // order_items.price_at_time_cents
	CreatedAt        time.Time // order_items.created_at
}
