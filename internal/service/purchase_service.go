package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/event-ticketing/internal/credential"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/monitoring"
	q "github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// CategoryStore is the slice of TicketCategoryRepo the purchase
// workflows need.
type CategoryStore interface {
	GetByID(ctx context.Context, id uint64) (*model.TicketCategory, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.TicketCategory, error)
	ReserveTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) error
	ReleaseTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) error
}

// OrderStore is the slice of OrderRepo the purchase workflows need.
type OrderStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error
	CreateItemTx(ctx context.Context, tx *sql.Tx, it *model.OrderItem) error
	GetByID(ctx context.Context, id uint64) (*model.Order, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Order, error)
	UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error
	MarkPaid(ctx context.Context, id uint64) error
	ListByUser(ctx context.Context, userID uint64) ([]repository.OrderDetail, error)
	ItemsByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) ([]model.OrderItem, error)
}

// UnitStore is the slice of TicketPurchaseRepo the purchase workflows
// need.
type UnitStore interface {
	CreateBulkTx(ctx context.Context, tx *sql.Tx, purchases []model.TicketPurchase) error
	ListByOrderForUser(ctx context.Context, orderID, userID uint64) ([]model.TicketPurchase, error)
	ListByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) ([]model.TicketPurchase, error)
	RefundAllTx(ctx context.Context, tx *sql.Tx, orderID uint64) (int64, error)
}

// SaleStore is the slice of FlashSaleRepo the purchase workflows need.
type SaleStore interface {
	FindActiveByCode(ctx context.Context, eventID uint64, code string) (*model.FlashSale, error)
	FindActiveByCodeTx(ctx context.Context, tx *sql.Tx, eventID uint64, code string) (*model.FlashSale, error)
	RedeemTx(ctx context.Context, tx *sql.Tx, saleID uint64) error
}

// EventStore is the slice of EventRepo the purchase workflows need.
type EventStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Event, error)
}

// PurchaseInput is the validated request reaching the orchestrator.
// The handler has already authenticated the user and bound the body;
// the core only ever sees strongly-typed inputs.
type PurchaseInput struct {
	UserID     uint64
	CategoryID uint64
	Quantity   uint32
	PromoCode  string // optional
}

// PurchaseResult is returned on a committed purchase.  One credential
// is issued per admitted unit.
type PurchaseResult struct {
	OrderID          uint64
	OrderReference   string
	TotalAmountCents uint32
	Credentials      []credential.Credential
}

// PurchaseService is the purchase orchestrator.  It owns the
// transaction that makes a sale atomic: inventory check-and-decrement,
// promo redemption, order + line item + per-unit ticket rows all
// commit or roll back together.  Credential rendering and side-effect
// publishing happen strictly after commit so no lock is held across a
// network call, and a publish failure can only cost a notification,
// never a sale.
type PurchaseService struct {
	txr        database.TxRunner
	categories CategoryStore
	orders     OrderStore
	units      UnitStore
	sales      SaleStore
	events     EventStore
	codec      *credential.Codec
	publisher  Publisher
}

// NewPurchaseService constructs a PurchaseService.  All dependencies
// are required.
func NewPurchaseService(
	txr database.TxRunner,
	categories CategoryStore,
	orders OrderStore,
	units UnitStore,
	sales SaleStore,
	events EventStore,
	codec *credential.Codec,
	publisher Publisher,
) *PurchaseService {
	if txr == nil || categories == nil || orders == nil || units == nil ||
		sales == nil || events == nil || codec == nil || publisher == nil {
		panic("nil dependency passed to NewPurchaseService")
	}
	return &PurchaseService{
		txr:        txr,
		categories: categories,
		orders:     orders,
		units:      units,
		sales:      sales,
		events:     events,
		codec:      codec,
		publisher:  publisher,
	}
}

// applyDiscount computes the discounted total for a subtotal in cents.
// Percentage math runs through decimal and is rounded half-up at the
// end; the result is floored at zero so a large fixed discount cannot
// produce a negative total.
func applyDiscount(subtotalCents uint32, sale *model.FlashSale) uint32 {
	sub := decimal.NewFromInt(int64(subtotalCents))
	var off decimal.Decimal
	switch sale.DiscountKind {
	case model.DiscountKindPercent:
		off = sub.Mul(decimal.NewFromInt(int64(sale.DiscountValue))).
			Div(decimal.NewFromInt(100))
	case model.DiscountKindFixed:
		off = decimal.NewFromInt(int64(sale.DiscountValue))
	default:
		return subtotalCents
	}
	total := sub.Sub(off).Round(0)
	if total.Sign() <= 0 {
		return 0
	}
	return uint32(total.IntPart())
}

// withinSalesWindow checks the optional sales window of a category.
func withinSalesWindow(c *model.TicketCategory, now time.Time) bool {
	if c.SalesStartAt != nil && now.Before(*c.SalesStartAt) {
		return false
	}
	if c.SalesEndAt != nil && now.After(*c.SalesEndAt) {
		return false
	}
	return true
}

// Purchase executes the atomic purchase workflow described above.
// Error conditions: ErrInvalidQuantity / ErrQuantityExceedsLimit /
// ErrSalesWindowClosed (caller's request is wrong),
// repository.ErrCategoryNotFound, repository.ErrInsufficientInventory
// (another buyer won the remaining units),
// repository.ErrPromoNotFound / repository.ErrPromoExhausted /
// ErrPromoNotApplicable.  There is no partial state: the whole
// transaction commits or none of it does.
func (s *PurchaseService) Purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	started := time.Now()
	if in.Quantity < 1 {
		monitoring.ObservePurchase("rejected", started)
		return nil, ErrInvalidQuantity
	}

	var (
		order   model.Order
		serials []string
	)
	err := s.txr.RunTx(ctx, func(tx *sql.Tx) error {
		cat, err := s.categories.GetForUpdateTx(ctx, tx, in.CategoryID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if !withinSalesWindow(cat, now) {
			return ErrSalesWindowClosed
		}
		if cat.MaxPerPurchase > 0 && in.Quantity > cat.MaxPerPurchase {
			return ErrQuantityExceedsLimit
		}
		// Check-and-decrement is a single conditional UPDATE; this is
		// the linearization point between concurrent buyers.
		if err := s.categories.ReserveTx(ctx, tx, cat.ID, in.Quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientInventory) {
				// cat was read under lock in this transaction, so its
				// availability is current and safe to surface.
				return &InsufficientInventoryError{Remaining: cat.AvailableQuantity}
			}
			return err
		}

		// The product can exceed uint32 on valid input (MaxPerPurchase
		// may be unlimited), so it is computed wide and bounds-checked
		// before narrowing.
		subtotal := uint64(cat.PriceCents) * uint64(in.Quantity)
		if subtotal > math.MaxUint32 {
			return ErrOrderTooLarge
		}
		total := uint32(subtotal)
		var sale *model.FlashSale
		if in.PromoCode != "" {
			sale, err = s.sales.FindActiveByCodeTx(ctx, tx, cat.EventID, in.PromoCode)
			if err != nil {
				return err
			}
			if !sale.AppliesTo(cat.ID) {
				return ErrPromoNotApplicable
			}
			// Redemption is consumed inside this transaction so the
			// cap cannot be exceeded by concurrent checkouts.
			if err := s.sales.RedeemTx(ctx, tx, sale.ID); err != nil {
				return err
			}
			total = applyDiscount(total, sale)
		}

		order = model.Order{
			Reference:        uuid.NewString(),
			UserID:           in.UserID,
			EventID:          cat.EventID,
			Status:           model.OrderStatusPending,
			TotalAmountCents: total,
		}
		if err := s.orders.CreateTx(ctx, tx, &order); err != nil {
			return err
		}
		item := model.OrderItem{
			OrderID:          order.ID,
			CategoryID:       cat.ID,
			Quantity:         in.Quantity,
			PriceAtTimeCents: cat.PriceCents, // snapshot, never recomputed
		}
		if err := s.orders.CreateItemTx(ctx, tx, &item); err != nil {
			return err
		}

		// One redeemable unit per admitted attendee.
		purchases := make([]model.TicketPurchase, 0, in.Quantity)
		serials = serials[:0]
		for i := uint32(0); i < in.Quantity; i++ {
			serial := uuid.NewString()
			serials = append(serials, serial)
			purchases = append(purchases, model.TicketPurchase{
				Serial:     serial,
				UserID:     in.UserID,
				OrderID:    order.ID,
				CategoryID: cat.ID,
				EventID:    cat.EventID,
				Status:     model.PurchaseStatusActive,
			})
		}
		return s.units.CreateBulkTx(ctx, tx, purchases)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientInventory),
			errors.Is(err, repository.ErrPromoExhausted):
			monitoring.ObservePurchase("conflict", started)
		case errors.Is(err, ErrSalesWindowClosed),
			errors.Is(err, ErrQuantityExceedsLimit),
			errors.Is(err, ErrOrderTooLarge),
			errors.Is(err, ErrPromoNotApplicable),
			errors.Is(err, repository.ErrCategoryNotFound),
			errors.Is(err, repository.ErrPromoNotFound):
			monitoring.ObservePurchase("rejected", started)
		default:
			monitoring.ObservePurchase("error", started)
		}
		return nil, err
	}

	// Credential rendering happens outside the transaction; the rows
	// are committed and the serials cannot change anymore.
	creds := make([]credential.Credential, 0, len(serials))
	for _, serial := range serials {
		cred, err := s.codec.Encode(serial, order.ID)
		if err != nil {
			// The purchase stands; the buyer can re-fetch credentials.
			log.Printf("purchase: credential render failed for order %d: %v", order.ID, err)
			continue
		}
		creds = append(creds, *cred)
	}

	s.publishConfirmation(ctx, order, in, serials)
	monitoring.ObservePurchase("ok", started)
	monitoring.AddTicketsSold(in.Quantity)
	if in.PromoCode != "" {
		monitoring.ObservePromoRedemption()
	}

	return &PurchaseResult{
		OrderID:          order.ID,
		OrderReference:   order.Reference,
		TotalAmountCents: order.TotalAmountCents,
		Credentials:      creds,
	}, nil
}

// publishConfirmation enqueues the confirmation event.  Failures are
// logged and swallowed: side effects never fail a committed purchase.
func (s *PurchaseService) publishConfirmation(ctx context.Context, order model.Order, in PurchaseInput, serials []string) {
	ev := q.OrderConfirmedEvent{
		OrderID:          order.ID,
		OrderReference:   order.Reference,
		UserID:           order.UserID,
		EventID:          order.EventID,
		Quantity:         in.Quantity,
		TotalAmountCents: order.TotalAmountCents,
		TicketSerials:    serials,
		PurchasedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if e, err := s.events.GetByID(ctx, order.EventID); err == nil {
		ev.EventTitle = e.Title
	}
	if cat, err := s.categories.GetByID(ctx, in.CategoryID); err == nil {
		ev.CategoryName = cat.Name
	}
	if err := s.publisher.PublishOrderConfirmed(ctx, ev); err != nil {
		log.Printf("purchase: confirmation publish failed for order %d: %v", order.ID, err)
	}
}

// ListOrders is the pass-through read behind GET /v1/my-orders.
func (s *PurchaseService) ListOrders(ctx context.Context, userID uint64) ([]repository.OrderDetail, error) {
	return s.orders.ListByUser(ctx, userID)
}

// GetCredentials re-renders the credentials of an order for its owner.
// Only ACTIVE units are rendered; used or refunded units no longer
// admit anyone and re-issuing their images would only confuse the
// gate.  repository.ErrForbidden is returned for non-owners.
func (s *PurchaseService) GetCredentials(ctx context.Context, orderID, userID uint64) ([]credential.Credential, error) {
	units, err := s.units.ListByOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	creds := make([]credential.Credential, 0, len(units))
	for _, u := range units {
		if u.Status != model.PurchaseStatusActive {
			continue
		}
		cred, err := s.codec.Encode(u.Serial, u.OrderID)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *cred)
	}
	return creds, nil
}

// MarkPaid is the hook the payment collaborator's confirmation
// callback invokes.  It is idempotent for already-paid orders.
func (s *PurchaseService) MarkPaid(ctx context.Context, orderID uint64) error {
	return s.orders.MarkPaid(ctx, orderID)
}

// ValidatePromo is the read-only promo preview behind the public
// endpoint.  It reports the discount terms when the code is active,
// within its window, under its cap and applicable to the category.
// The authoritative cap check remains the conditional increment inside
// Purchase; this preview can say "yes" moments before a rush exhausts
// the cap, and the purchase will still be priced correctly.
func (s *PurchaseService) ValidatePromo(ctx context.Context, eventID uint64, code string, categoryID uint64) (*model.FlashSale, error) {
	sale, err := s.sales.FindActiveByCode(ctx, eventID, code)
	if err != nil {
		return nil, err
	}
	if sale.MaxRedemptions != nil && sale.CurrentRedemptions >= *sale.MaxRedemptions {
		return nil, repository.ErrPromoExhausted
	}
	if categoryID != 0 && !sale.AppliesTo(categoryID) {
		return nil, ErrPromoNotApplicable
	}
	return sale, nil
}
