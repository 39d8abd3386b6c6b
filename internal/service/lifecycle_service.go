package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/event-ticketing/internal/credential"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/monitoring"
	q "github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// GateStore is the slice of TicketPurchaseRepo the lifecycle workflows
// need.
type GateStore interface {
	FindBySerialAndOrder(ctx context.Context, serial string, orderID uint64) (*repository.GateRecord, error)
	MarkUsed(ctx context.Context, purchaseID uint64) error
	GetByID(ctx context.Context, id uint64) (*model.TicketPurchase, error)
	Reassign(ctx context.Context, purchaseID, fromUserID, toUserID uint64) error
	ListByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) ([]model.TicketPurchase, error)
	RefundAllTx(ctx context.Context, tx *sql.Tx, orderID uint64) (int64, error)
}

// UserStore is the slice of UserRepo the lifecycle workflows need.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

// AdmissionResult is what the gate operator sees after a successful
// scan.
type AdmissionResult struct {
	TicketSerial string `json:"ticket_serial"`
	EventTitle   string `json:"event_title"`
	CategoryName string `json:"category_name"`
	AttendeeName string `json:"attendee_name"`
	AdmittedAt   string `json:"admitted_at"`
}

// LifecycleService runs the post-purchase workflows of a ticket:
// admission at the gate, transfer to another attendee and refund of a
// whole order.
type LifecycleService struct {
	txr        database.TxRunner
	units      GateStore
	orders     OrderStore
	categories CategoryStore
	users      UserStore
	codec      *credential.Codec
	publisher  Publisher
}

// NewLifecycleService constructs a LifecycleService.
func NewLifecycleService(
	txr database.TxRunner,
	units GateStore,
	orders OrderStore,
	categories CategoryStore,
	users UserStore,
	codec *credential.Codec,
	publisher Publisher,
) *LifecycleService {
	if txr == nil || units == nil || orders == nil || categories == nil ||
		users == nil || codec == nil || publisher == nil {
		panic("nil dependency passed to NewLifecycleService")
	}
	return &LifecycleService{
		txr:        txr,
		units:      units,
		orders:     orders,
		categories: categories,
		users:      users,
		codec:      codec,
		publisher:  publisher,
	}
}

// Validate admits the holder of a scanned credential.  The signature
// is checked before the database is touched, then the burn is a single
// conditional ACTIVE→USED update, so two gates scanning the same
// credential at once can never both admit: exactly one update wins and
// the loser sees ErrAlreadyUsed.
//
// Errors: credential.ErrInvalidFormat (bad or forged wire format),
// ErrCredentialNotRecognized (signed by us but no matching row, which
// normally means a deleted order), ErrOrderNotPaid,
// repository.ErrAlreadyUsed (also covers transferred-away and refunded
// units).
func (s *LifecycleService) Validate(ctx context.Context, wire string) (*AdmissionResult, error) {
	payload, err := s.codec.Decode(wire)
	if err != nil {
		monitoring.ObserveValidation("invalid")
		return nil, err
	}
	rec, err := s.units.FindBySerialAndOrder(ctx, payload.TicketSerial, payload.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrPurchaseNotFound) {
			monitoring.ObserveValidation("not_recognized")
			return nil, ErrCredentialNotRecognized
		}
		monitoring.ObserveValidation("error")
		return nil, err
	}
	if rec.OrderStatus != model.OrderStatusPaid {
		monitoring.ObserveValidation("unpaid")
		return nil, ErrOrderNotPaid
	}
	if rec.Status != model.PurchaseStatusActive {
		monitoring.ObserveValidation("already_used")
		return nil, repository.ErrAlreadyUsed
	}
	if err := s.units.MarkUsed(ctx, rec.PurchaseID); err != nil {
		if errors.Is(err, repository.ErrAlreadyUsed) {
			// Lost the race against another gate.
			monitoring.ObserveValidation("already_used")
		} else {
			monitoring.ObserveValidation("error")
		}
		return nil, err
	}
	monitoring.ObserveValidation("admitted")
	return &AdmissionResult{
		TicketSerial: rec.Serial,
		EventTitle:   rec.EventTitle,
		CategoryName: rec.CategoryName,
		AttendeeName: rec.AttendeeName,
		AdmittedAt:   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Transfer reassigns one ACTIVE unit from its current owner to the
// account registered under recipientEmail.  The credential stays the
// same: the serial does not change and the previously issued image
// keeps working in the recipient's hands.
//
// Errors: repository.ErrPurchaseNotFound, repository.ErrForbidden
// (caller does not own the unit), ErrNotTransferable (unit is not
// ACTIVE), ErrRecipientNotFound, ErrSelfTransfer.
func (s *LifecycleService) Transfer(ctx context.Context, purchaseID, ownerID uint64, recipientEmail string) error {
	unit, err := s.units.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if unit.UserID != ownerID {
		return repository.ErrForbidden
	}
	if unit.Status != model.PurchaseStatusActive {
		return ErrNotTransferable
	}
	recipient, err := s.users.GetByEmail(ctx, recipientEmail)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrRecipientNotFound
		}
		return err
	}
	if recipient.ID == ownerID {
		return ErrSelfTransfer
	}
	// Conditional on the current owner and ACTIVE status, so a
	// concurrent admission or second transfer cannot double-assign.
	if err := s.units.Reassign(ctx, purchaseID, ownerID, recipient.ID); err != nil {
		return err
	}
	s.notify(ctx, q.TicketNotificationEvent{
		Kind:         q.NotificationTicketTransferred,
		UserID:       recipient.ID,
		TicketSerial: unit.Serial,
		OccurredAt:   time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

// Refund refunds a whole PAID order: every unit flips to REFUNDED and
// the reserved inventory returns to its categories, all in one
// transaction.  Orders with any USED unit are rejected whole; there
// are no partial refunds.
//
// Errors: repository.ErrOrderNotFound, ErrNotRefundable (order not
// PAID), ErrPartiallyUsed.
func (s *LifecycleService) Refund(ctx context.Context, orderID uint64) error {
	var buyerID uint64
	err := s.txr.RunTx(ctx, func(tx *sql.Tx) error {
		order, err := s.orders.GetForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != model.OrderStatusPaid {
			return ErrNotRefundable
		}
		buyerID = order.UserID

		units, err := s.units.ListByOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, u := range units {
			if u.Status == model.PurchaseStatusUsed {
				return ErrPartiallyUsed
			}
		}
		if _, err := s.units.RefundAllTx(ctx, tx, orderID); err != nil {
			return err
		}

		items, err := s.orders.ItemsByOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := s.categories.ReleaseTx(ctx, tx, it.CategoryID, it.Quantity); err != nil {
				return err
			}
		}
		return s.orders.UpdateStatusTx(ctx, tx, orderID, model.OrderStatusPaid, model.OrderStatusRefunded)
	})
	if err != nil {
		return err
	}
	s.notify(ctx, q.TicketNotificationEvent{
		Kind:       q.NotificationOrderRefunded,
		UserID:     buyerID,
		OrderID:    orderID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

func (s *LifecycleService) notify(ctx context.Context, ev q.TicketNotificationEvent) {
	if err := s.publisher.PublishTicketNotification(ctx, ev); err != nil {
		log.Printf("lifecycle: notification publish failed: %v", err)
	}
}
