package model

import "time"

// TicketCategory is the inventory unit of the system: a priced class of
// admission (e.g. Regular/VIP) with its own capacity pool.  It is not an
// individual ticket.  The invariant 0 <= available_quantity <=
// total_quantity holds at all times and is enforced exclusively through
// atomic conditional UPDATEs in the repository layer; nothing in the
// application ever computes a new quantity in memory and writes it back.
//
// Fields:
//
//	ID                – primary key identifier.
//	EventID           – event this category belongs to.
//	Name              – display name (e.g. "VIP").
//	PriceCents        – unit price in cents.
//	TotalQuantity     – capacity of the pool; never changes after creation.
//	AvailableQuantity – remaining sellable units.
//	MaxPerPurchase    – upper bound on quantity per purchase request.
//	SalesStartAt      – optional opening of the sales window (nil = open).
//	SalesEndAt        – optional closing of the sales window (nil = open).
//	CreatedAt         – timestamp of creation.
//	UpdatedAt         – timestamp of last update.
type TicketCategory struct {
	ID                uint64     // ticket_categories.id
	EventID           uint64     // ticket_categories.event_id
	Name              string     // ticket_categories.name
	PriceCents        uint32     // ticket_categories.price_cents
	TotalQuantity     uint32     // ticket_categories.total_quantity
	AvailableQuantity uint32     // ticket_categories.available_quantity
	MaxPerPurchase    uint32     // ticket_categories.max_per_purchase
	SalesStartAt      *time.Time // ticket_categories.sales_start_at (nullable)
	SalesEndAt        *time.Time // ticket_categories.sales_end_at (nullable)
	CreatedAt         time.Time  // ticket_categories.created_at
	UpdatedAt         time.Time  // ticket_categories.updated_at
}

// TicketPurchase statuses.  A purchase is created ACTIVE, becomes USED
// exactly once at the gate, or REFUNDED exactly once through the refund
// workflow.  A transfer keeps the row ACTIVE under a new owner.
const (
	PurchaseStatusActive   = "ACTIVE"
	PurchaseStatusUsed     = "USED"
	PurchaseStatusRefunded = "REFUNDED"
)

// TicketPurchase is one individually redeemable admission instance:
// one row per admitted attendee.  A purchase of quantity N creates N
// rows, each with its own serial, so "used" tracking is per attendee and
// never per order.
//
// Fields:
//
//	ID          – primary key identifier.
//	Serial      – opaque unique serial embedded in the QR credential.
//	UserID      – current holder; reassigned by a transfer.
//	OrderID     – order under which the unit was bought.
//	CategoryID  – ticket category that supplied the unit.
//	EventID     – denormalized event reference for gate lookups.
//	Status      – one of the PurchaseStatus* constants.
//	PurchasedAt – when the purchase transaction committed.
//	UsedAt      – when the credential was redeemed at the gate, if ever.
type TicketPurchase struct {
	ID          uint64     // ticket_purchases.id
	Serial      string     // ticket_purchases.serial (uuid, unique)
	UserID      uint64     // ticket_purchases.user_id
	OrderID     uint64     // ticket_purchases.order_id
	CategoryID  uint64     // ticket_purchases.category_id
	EventID     uint64     // ticket_purchases.event_id
	Status      string     // ticket_purchases.status
	PurchasedAt time.Time  // ticket_purchases.purchased_at
	UsedAt      *time.Time // ticket_purchases.used_at (nullable)
}
