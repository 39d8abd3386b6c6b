package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// TicketCategoryRepo provides data access to the ticket_categories
// table.  The available_quantity column is the hot, contended counter
// of the whole system: it is mutated exclusively through ReserveTx and
// ReleaseTx, both of which are single conditional UPDATE statements.
// No method reads a quantity into memory and writes a computed value
// back, so two concurrent purchases can never both observe stale
// availability.
type TicketCategoryRepo struct {
	db *sql.DB
}

// NewTicketCategoryRepo returns a new TicketCategoryRepo bound to the
// given database.
func NewTicketCategoryRepo(db *sql.DB) *TicketCategoryRepo { return &TicketCategoryRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions
// that span multiple repositories.
func (r *TicketCategoryRepo) DB() *sql.DB { return r.db }

const categoryColumns = `id, event_id, name, price_cents, total_quantity, available_quantity,
        max_per_purchase, sales_start_at, sales_end_at, created_at, updated_at`

func scanCategory(row *sql.Row) (*model.TicketCategory, error) {
	var c model.TicketCategory
	var salesStart, salesEnd sql.NullTime
	err := row.Scan(
		&c.ID, &c.EventID, &c.Name, &c.PriceCents, &c.TotalQuantity, &c.AvailableQuantity,
		&c.MaxPerPurchase, &salesStart, &salesEnd, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	if salesStart.Valid {
		t := salesStart.Time
		c.SalesStartAt = &t
	}
	if salesEnd.Valid {
		t := salesEnd.Time
		c.SalesEndAt = &t
	}
	return &c, nil
}

// Create inserts a new ticket category.  The available quantity starts
// equal to the total quantity.  The generated ID is populated on the
// passed model.
func (r *TicketCategoryRepo) Create(ctx context.Context, c *model.TicketCategory) error {
	const q = `INSERT INTO ticket_categories
            (event_id, name, price_cents, total_quantity, available_quantity,
             max_per_purchase, sales_start_at, sales_end_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var salesStart, salesEnd interface{}
	if c.SalesStartAt != nil {
		salesStart = c.SalesStartAt.UTC()
	}
	if c.SalesEndAt != nil {
		salesEnd = c.SalesEndAt.UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		c.EventID, c.Name, c.PriceCents, c.TotalQuantity, c.TotalQuantity,
		c.MaxPerPurchase, salesStart, salesEnd,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	c.AvailableQuantity = c.TotalQuantity
	return nil
}

// GetByID returns a ticket category outside of any transaction.  It is
// intended for read-only display paths; purchase code must use
// GetForUpdateTx instead.
func (r *TicketCategoryRepo) GetByID(ctx context.Context, id uint64) (*model.TicketCategory, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM ticket_categories WHERE id = ?`, id)
	return scanCategory(row)
}

// GetForUpdateTx reads a ticket category with a row lock so the
// purchase transaction can snapshot the price and check the sales
// window without another transaction mutating the row underneath it.
// It returns ErrCategoryNotFound when the id does not exist.
func (r *TicketCategoryRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.TicketCategory, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM ticket_categories WHERE id = ? FOR UPDATE`, id)
	return scanCategory(row)
}

// ReserveTx atomically decrements available_quantity by qty when at
// least qty units remain.  The check and the decrement are one
// statement; a result of zero affected rows means another buyer won
// the remaining units first and ErrInsufficientInventory is returned.
// The caller must roll back its transaction on error.
func (r *TicketCategoryRepo) ReserveTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) error {
	const q = `UPDATE ticket_categories
               SET available_quantity = available_quantity - ?
               WHERE id = ? AND available_quantity >= ?`
	res, err := tx.ExecContext(ctx, q, qty, id, qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientInventory
	}
	return nil
}

// ReleaseTx returns qty units to the pool, used by the refund workflow.
// The guard against exceeding total_quantity is kept even though a
// refund can only return units the matching purchase removed; zero
// affected rows here indicates corrupted accounting and is surfaced as
// an error rather than silently ignored.
func (r *TicketCategoryRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, id uint64, qty uint32) error {
	const q = `UPDATE ticket_categories
               SET available_quantity = available_quantity + ?
               WHERE id = ? AND available_quantity + ? <= total_quantity`
	res, err := tx.ExecContext(ctx, q, qty, id, qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("inventory release would exceed total quantity")
	}
	return nil
}

// UpdatePrice changes the unit price of a category.  Existing order
// items are unaffected because they snapshot price_at_time_cents at
// purchase time.
func (r *TicketCategoryRepo) UpdatePrice(ctx context.Context, id uint64, priceCents uint32) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ticket_categories SET price_cents = ? WHERE id = ?`, priceCents, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// ListByEvent returns all categories of an event ordered by price.
func (r *TicketCategoryRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.TicketCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM ticket_categories WHERE event_id = ? ORDER BY price_cents`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.TicketCategory, 0)
	for rows.Next() {
		var c model.TicketCategory
		var salesStart, salesEnd sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.EventID, &c.Name, &c.PriceCents, &c.TotalQuantity, &c.AvailableQuantity,
			&c.MaxPerPurchase, &salesStart, &salesEnd, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if salesStart.Valid {
			t := salesStart.Time
			c.SalesStartAt = &t
		}
		if salesEnd.Valid {
			t := salesEnd.Time
			c.SalesEndAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
