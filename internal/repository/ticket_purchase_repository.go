package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// TicketPurchaseRepo provides data access to the ticket_purchases
// table.  Each row is one redeemable admission unit.  Lifecycle
// transitions (ACTIVE -> USED, ACTIVE -> REFUNDED, owner reassignment
// on transfer) are expressed as conditional UPDATEs guarded on the
// current status, so a transition can be won by at most one caller.
type TicketPurchaseRepo struct {
	db *sql.DB
}

// NewTicketPurchaseRepo returns a new TicketPurchaseRepo bound to the
// given database.
func NewTicketPurchaseRepo(db *sql.DB) *TicketPurchaseRepo { return &TicketPurchaseRepo{db: db} }

// CreateBulkTx inserts multiple ticket purchase rows in a single
// statement within the provided transaction.  Each record must carry
// its serial; purchased_at defaults in the database.  Passing an empty
// slice has no effect and returns nil.
func (r *TicketPurchaseRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, purchases []model.TicketPurchase) error {
	if len(purchases) == 0 {
		return nil
	}
	query := `INSERT INTO ticket_purchases (serial, user_id, order_id, category_id, event_id, status) VALUES `
	args := make([]interface{}, 0, len(purchases)*6)
	for i, p := range purchases {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, p.Serial, p.UserID, p.OrderID, p.CategoryID, p.EventID, p.Status)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GateRecord carries everything the entry gate needs to display after a
// successful (or attempted) credential scan: the unit itself plus the
// parent order status and human-readable event/category/attendee data.
type GateRecord struct {
	PurchaseID   uint64
	Serial       string
	Status       string
	OrderID      uint64
	OrderStatus  string
	EventID      uint64
	EventTitle   string
	CategoryName string
	AttendeeID   uint64
	AttendeeName string
}

// FindBySerialAndOrder looks up a purchase by the (serial, order id)
// pair decoded from a credential, joining order, event, category and
// holder.  It returns ErrPurchaseNotFound when the pair does not
// exist, which the caller reports as "credential not recognized" --
// distinct from a malformed payload.
func (r *TicketPurchaseRepo) FindBySerialAndOrder(ctx context.Context, serial string, orderID uint64) (*GateRecord, error) {
	const q = `SELECT tp.id, tp.serial, tp.status, tp.order_id, o.status,
                      tp.event_id, e.title, tc.name, u.id, u.name
               FROM ticket_purchases tp
               JOIN orders o ON o.id = tp.order_id
               JOIN events e ON e.id = tp.event_id
               JOIN ticket_categories tc ON tc.id = tp.category_id
               JOIN users u ON u.id = tp.user_id
               WHERE tp.serial = ? AND tp.order_id = ?`
	var g GateRecord
	err := r.db.QueryRowContext(ctx, q, serial, orderID).Scan(
		&g.PurchaseID, &g.Serial, &g.Status, &g.OrderID, &g.OrderStatus,
		&g.EventID, &g.EventTitle, &g.CategoryName, &g.AttendeeID, &g.AttendeeName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	return &g, nil
}

// MarkUsed performs the one-shot ACTIVE -> USED transition for a unit.
// The status guard in the WHERE clause is what makes two simultaneous
// scans of a copied QR code resolve to exactly one winner: the second
// UPDATE matches no row and ErrAlreadyUsed is returned.  A single
// statement is atomic from the store's perspective, so no surrounding
// transaction is required.
func (r *TicketPurchaseRepo) MarkUsed(ctx context.Context, purchaseID uint64) error {
	const q = `UPDATE ticket_purchases
               SET status = ?, used_at = UTC_TIMESTAMP()
               WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, model.PurchaseStatusUsed, purchaseID, model.PurchaseStatusActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyUsed
	}
	return nil
}

// GetByID returns a single purchase row.  It returns
// ErrPurchaseNotFound when the id does not exist.
func (r *TicketPurchaseRepo) GetByID(ctx context.Context, id uint64) (*model.TicketPurchase, error) {
	const q = `SELECT id, serial, user_id, order_id, category_id, event_id, status, purchased_at, used_at
               FROM ticket_purchases WHERE id = ?`
	var p model.TicketPurchase
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Serial, &p.UserID, &p.OrderID, &p.CategoryID, &p.EventID,
		&p.Status, &p.PurchasedAt, &usedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}
	if usedAt.Valid {
		t := usedAt.Time
		p.UsedAt = &t
	}
	return &p, nil
}

// Reassign moves an ACTIVE unit to a new holder.  The guards on the
// current owner and status are part of the statement, so a concurrent
// redemption or second transfer cannot interleave with it; zero
// affected rows is reported as ErrAlreadyUsed (unit left ACTIVE state)
// and the caller distinguishes ownership failures beforehand.
func (r *TicketPurchaseRepo) Reassign(ctx context.Context, purchaseID, fromUserID, toUserID uint64) error {
	const q = `UPDATE ticket_purchases
               SET user_id = ?
               WHERE id = ? AND user_id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, toUserID, purchaseID, fromUserID, model.PurchaseStatusActive)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyUsed
	}
	return nil
}

// ListByOrderTx returns all units under an order, locking the rows for
// the remainder of the transaction.  The refund workflow relies on the
// lock so a gate scan cannot mark a unit USED between the batch check
// and the batch transition.
func (r *TicketPurchaseRepo) ListByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) ([]model.TicketPurchase, error) {
	const q = `SELECT id, serial, user_id, order_id, category_id, event_id, status, purchased_at, used_at
               FROM ticket_purchases WHERE order_id = ? FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TicketPurchase
	for rows.Next() {
		var p model.TicketPurchase
		var usedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.Serial, &p.UserID, &p.OrderID, &p.CategoryID,
			&p.EventID, &p.Status, &p.PurchasedAt, &usedAt); err != nil {
			return nil, err
		}
		if usedAt.Valid {
			t := usedAt.Time
			p.UsedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RefundAllTx transitions every ACTIVE unit of an order to REFUNDED
// within the transaction and returns the number of rows transitioned.
// Callers must have already verified (under the ListByOrderTx lock)
// that no unit is USED.
func (r *TicketPurchaseRepo) RefundAllTx(ctx context.Context, tx *sql.Tx, orderID uint64) (int64, error) {
	const q = `UPDATE ticket_purchases SET status = ? WHERE order_id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, model.PurchaseStatusRefunded, orderID, model.PurchaseStatusActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByOrderForUser returns the units of an order provided the order
// belongs to the given user.  Used when re-rendering credentials; the
// ownership check lives in the query so non-owners cannot probe
// serials.  ErrForbidden is returned when the order exists but is
// owned by someone else.
func (r *TicketPurchaseRepo) ListByOrderForUser(ctx context.Context, orderID, userID uint64) ([]model.TicketPurchase, error) {
	const ownerQ = `SELECT user_id FROM orders WHERE id = ?`
	var ownerID uint64
	if err := r.db.QueryRowContext(ctx, ownerQ, orderID).Scan(&ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if ownerID != userID {
		return nil, ErrForbidden
	}
	const q = `SELECT id, serial, user_id, order_id, category_id, event_id, status, purchased_at, used_at
               FROM ticket_purchases WHERE order_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TicketPurchase, 0)
	for rows.Next() {
		var p model.TicketPurchase
		var usedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.Serial, &p.UserID, &p.OrderID, &p.CategoryID,
			&p.EventID, &p.Status, &p.PurchasedAt, &usedAt); err != nil {
			return nil, err
		}
		if usedAt.Valid {
			t := usedAt.Time
			p.UsedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
