package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// FlashSaleRepo provides data access to flash_sales and
// flash_sale_categories.  The current_redemptions counter is mutated
// only through RedeemTx, a single conditional increment checked by
// affected row count.  Validation and redemption are never two
// separate calls: the purchase transaction locks the sale row, checks
// applicability in memory, and redeems with the guard re-stated in the
// UPDATE itself, so concurrent checkouts cannot push the counter past
// max_redemptions.
type FlashSaleRepo struct {
	db *sql.DB
}

// NewFlashSaleRepo returns a new FlashSaleRepo bound to the given
// database.
func NewFlashSaleRepo(db *sql.DB) *FlashSaleRepo { return &FlashSaleRepo{db: db} }

const flashSaleColumns = `id, event_id, promo_code, discount_kind, discount_value,
        starts_at, ends_at, max_redemptions, current_redemptions, is_active, created_at, updated_at`

func (r *FlashSaleRepo) scanSale(ctx context.Context, row *sql.Row, q queryer) (*model.FlashSale, error) {
	var s model.FlashSale
	var maxRedemptions sql.NullInt64
	err := row.Scan(
		&s.ID, &s.EventID, &s.PromoCode, &s.DiscountKind, &s.DiscountValue,
		&s.StartsAt, &s.EndsAt, &maxRedemptions, &s.CurrentRedemptions,
		&s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPromoNotFound
		}
		return nil, err
	}
	if maxRedemptions.Valid {
		m := uint32(maxRedemptions.Int64)
		s.MaxRedemptions = &m
	}
	// Load the applicable category set; empty means all categories.
	rows, err := q.QueryContext(ctx,
		`SELECT category_id FROM flash_sale_categories WHERE flash_sale_id = ?`, s.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		s.CategoryIDs = append(s.CategoryIDs, id)
	}
	return &s, rows.Err()
}

// queryer abstracts *sql.DB and *sql.Tx for the category-set query.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Create inserts a flash sale and its category restrictions.  Promo
// codes are stored upper-cased so lookups are case-insensitive.
func (r *FlashSaleRepo) Create(ctx context.Context, s *model.FlashSale) error {
	var maxRedemptions interface{}
	if s.MaxRedemptions != nil {
		maxRedemptions = *s.MaxRedemptions
	}
	s.PromoCode = strings.ToUpper(strings.TrimSpace(s.PromoCode))
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO flash_sales
         (event_id, promo_code, discount_kind, discount_value, starts_at, ends_at, max_redemptions, is_active)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.EventID, s.PromoCode, s.DiscountKind, s.DiscountValue,
		s.StartsAt.UTC(), s.EndsAt.UTC(), maxRedemptions, s.IsActive,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	if len(s.CategoryIDs) == 0 {
		return nil
	}
	query := `INSERT INTO flash_sale_categories (flash_sale_id, category_id) VALUES `
	args := make([]interface{}, 0, len(s.CategoryIDs)*2)
	for i, cid := range s.CategoryIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?)"
		args = append(args, s.ID, cid)
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// FindActiveByCode returns the active flash sale matching a promo code
// for an event, for the read-only validation preview.  The window and
// active checks are in the query; the redemption cap is NOT checked
// here because only RedeemTx can answer it authoritatively.
func (r *FlashSaleRepo) FindActiveByCode(ctx context.Context, eventID uint64, code string) (*model.FlashSale, error) {
	const q = `SELECT ` + flashSaleColumns + ` FROM flash_sales
               WHERE event_id = ? AND promo_code = ? AND is_active = 1
                 AND starts_at <= UTC_TIMESTAMP() AND ends_at >= UTC_TIMESTAMP()`
	row := r.db.QueryRowContext(ctx, q, eventID, strings.ToUpper(strings.TrimSpace(code)))
	return r.scanSale(ctx, row, r.db)
}

// FindActiveByCodeTx is FindActiveByCode inside the purchase
// transaction, taking a row lock so the sale definition cannot change
// between the applicability check and RedeemTx.
func (r *FlashSaleRepo) FindActiveByCodeTx(ctx context.Context, tx *sql.Tx, eventID uint64, code string) (*model.FlashSale, error) {
	const q = `SELECT ` + flashSaleColumns + ` FROM flash_sales
               WHERE event_id = ? AND promo_code = ? AND is_active = 1
                 AND starts_at <= UTC_TIMESTAMP() AND ends_at >= UTC_TIMESTAMP()
               FOR UPDATE`
	row := tx.QueryRowContext(ctx, q, eventID, strings.ToUpper(strings.TrimSpace(code)))
	return r.scanSale(ctx, row, tx)
}

// RedeemTx consumes one redemption of the sale.  The cap, window and
// active guards are all re-stated in the UPDATE so the check and the
// increment are a single atomic step; zero affected rows means the cap
// was reached (or the sale closed) since the caller's lookup, and the
// purchase transaction must be rolled back with ErrPromoExhausted.
func (r *FlashSaleRepo) RedeemTx(ctx context.Context, tx *sql.Tx, saleID uint64) error {
	const q = `UPDATE flash_sales
               SET current_redemptions = current_redemptions + 1
               WHERE id = ? AND is_active = 1
                 AND starts_at <= UTC_TIMESTAMP() AND ends_at >= UTC_TIMESTAMP()
                 AND (max_redemptions IS NULL OR current_redemptions < max_redemptions)`
	res, err := tx.ExecContext(ctx, q, saleID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPromoExhausted
	}
	return nil
}
