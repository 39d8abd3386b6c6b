// Package queue defines message payloads exchanged over the message
// broker and the background consumer that turns them into notification
// records.  Everything here runs strictly after the purchase
// transaction has committed; a broker outage can delay notifications
// but can never fail or roll back a purchase.
package queue

// Queue names.  Both are declared durable by publisher and consumer.
const (
	OrderConfirmedQueue     = "order.confirmed"
	TicketNotificationQueue = "ticket.notification"
)

// Notification kinds carried by TicketNotificationEvent.
const (
	NotificationTicketTransferred = "TRANSFER"
	NotificationOrderRefunded     = "REFUND"
)

// OrderConfirmedEvent is published when a purchase transaction commits.
// It carries enough information for downstream consumers to send the
// confirmation email and in-app notification without querying the
// primary database.
type OrderConfirmedEvent struct {
	OrderID          uint64   `json:"order_id"`
	OrderReference   string   `json:"order_reference"`
	UserID           uint64   `json:"user_id"`
	EventID          uint64   `json:"event_id"`
	EventTitle       string   `json:"event_title"`
	CategoryName     string   `json:"category_name"`
	Quantity         uint32   `json:"quantity"`
	TotalAmountCents uint32   `json:"total_amount_cents"`
	TicketSerials    []string `json:"ticket_serials"`
	PurchasedAt      string   `json:"purchased_at"`
}

// TicketNotificationEvent is published for lifecycle changes a holder
// should hear about: an incoming transfer or a refund.
type TicketNotificationEvent struct {
	Kind         string `json:"kind"` // TRANSFER or REFUND
	UserID       uint64 `json:"user_id"`
	OrderID      uint64 `json:"order_id,omitempty"`
	TicketSerial string `json:"ticket_serial,omitempty"`
	EventID      uint64 `json:"event_id"`
	Detail       string `json:"detail"`
	OccurredAt   string `json:"occurred_at"`
}
