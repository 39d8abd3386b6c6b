package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// OrderRepo provides CRUD operations for orders and their line items.
// Orders are only ever created inside the purchase transaction; status
// changes after creation come from the payment collaborator (PENDING ->
// PAID) and the refund workflow (PAID -> REFUNDED).
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// CreateTx inserts a new order within the scope of an existing
// transaction and populates the generated ID on the passed model.
// The caller must commit or roll back the transaction.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	const q = `INSERT INTO orders (reference, user_id, event_id, status, total_amount_cents)
               VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, o.Reference, o.UserID, o.EventID, o.Status, o.TotalAmountCents)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// CreateItemTx inserts an order line item within the transaction.  The
// price_at_time_cents column is written here once and never updated,
// which is what makes it a snapshot.
func (r *OrderRepo) CreateItemTx(ctx context.Context, tx *sql.Tx, it *model.OrderItem) error {
	const q = `INSERT INTO order_items (order_id, category_id, quantity, price_at_time_cents)
               VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, it.OrderID, it.CategoryID, it.Quantity, it.PriceAtTimeCents)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	it.ID = uint64(id)
	return nil
}

const orderColumns = `id, reference, user_id, event_id, status, total_amount_cents, created_at, updated_at`

func scanOrder(row *sql.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.Reference, &o.UserID, &o.EventID, &o.Status,
		&o.TotalAmountCents, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// GetByID returns an order by id.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	return scanOrder(row)
}

// GetForUpdateTx reads an order with a row lock, used by the refund
// workflow to pin the order status while its units are transitioned.
func (r *OrderRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Order, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
	return scanOrder(row)
}

// MarkPaid transitions an order from PENDING to PAID.  It is invoked by
// the payment collaborator's confirmation callback.  The status guard
// in the WHERE clause makes the transition idempotent and prevents
// resurrecting cancelled or refunded orders; zero affected rows on an
// existing order is therefore not an error when it is already PAID.
func (r *OrderRepo) MarkPaid(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		model.OrderStatusPaid, id, model.OrderStatusPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	// Distinguish "already paid" from "no such order".
	o, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o.Status == model.OrderStatusPaid {
		return nil
	}
	return ErrOrderNotFound
}

// UpdateStatusTx sets an order's status within the transaction, guarded
// by the expected current status.  Zero affected rows returns
// ErrOrderNotFound so the caller aborts rather than committing a
// half-applied workflow.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// OrderDetail is the shape returned to customers listing their orders.
type OrderDetail struct {
	ID               uint64    `json:"id"`
	Reference        string    `json:"reference"`
	EventID          uint64    `json:"event_id"`
	EventTitle       string    `json:"event_title"`
	Status           string    `json:"status"`
	TotalAmountCents uint32    `json:"total_amount_cents"`
	CreatedAt        string    `json:"created_at"`
	Items            []ItemRow `json:"items"`
}

// ItemRow is a line item inside an OrderDetail.
type ItemRow struct {
	CategoryID       uint64 `json:"category_id"`
	CategoryName     string `json:"category_name"`
	Quantity         uint32 `json:"quantity"`
	PriceAtTimeCents uint32 `json:"price_at_time_cents"`
}

// ListByUser returns all orders of a user, newest first, with line
// items populated in a second query keyed by order id.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64) ([]OrderDetail, error) {
	const q = `SELECT o.id, o.reference, o.event_id, e.title, o.status, o.total_amount_cents, o.created_at
               FROM orders o
               JOIN events e ON e.id = o.event_id
               WHERE o.user_id = ?
               ORDER BY o.created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]OrderDetail, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		var d OrderDetail
		var createdAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.Reference, &d.EventID, &d.EventTitle, &d.Status,
			&d.TotalAmountCents, &createdAt); err != nil {
			return nil, err
		}
		if createdAt.Valid {
			d.CreatedAt = createdAt.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		d.Items = []ItemRow{}
		index[d.ID] = len(details)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return details, nil
	}
	// Fetch items for all orders in one query.
	ids := make([]interface{}, 0, len(details))
	placeholders := ""
	for i, d := range details {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		ids = append(ids, d.ID)
	}
	itemQ := `SELECT oi.order_id, oi.category_id, tc.name, oi.quantity, oi.price_at_time_cents
              FROM order_items oi
              JOIN ticket_categories tc ON tc.id = oi.category_id
              WHERE oi.order_id IN (` + placeholders + `)
              ORDER BY oi.order_id, oi.id`
	irows, err := r.db.QueryContext(ctx, itemQ, ids...)
	if err != nil {
		return nil, err
	}
	defer irows.Close()
	for irows.Next() {
		var orderID uint64
		var it ItemRow
		if err := irows.Scan(&orderID, &it.CategoryID, &it.CategoryName, &it.Quantity, &it.PriceAtTimeCents); err != nil {
			return nil, err
		}
		if idx, ok := index[orderID]; ok {
			details[idx].Items = append(details[idx].Items, it)
		}
	}
	return details, irows.Err()
}

// ItemsByOrderTx returns the line items of an order inside the
// transaction.  The refund workflow uses it to know how many units to
// return to each category pool.
func (r *OrderRepo) ItemsByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) ([]model.OrderItem, error) {
	const q = `SELECT id, order_id, category_id, quantity, price_at_time_cents, created_at
               FROM order_items WHERE order_id = ?`
	rows, err := tx.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.CategoryID, &it.Quantity,
			&it.PriceAtTimeCents, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
