package model

import "time"

// Flash sale discount kinds.  A PERCENT sale takes DiscountValue as a
// percentage of the order subtotal; a FIXED sale takes it as an amount
// in cents.
const (
	DiscountKindPercent = "PERCENT"
	DiscountKindFixed   = "FIXED"
)

// FlashSale represents a bounded-redemption discount attached to an
// event, optionally gated behind a promo code and restricted to a set
// of ticket categories.  The invariant current_redemptions <=
// max_redemptions (when capped) is enforced by a single conditional
// UPDATE in the repository; validation and redemption are never two
// separate steps.
//
// Fields:
//
//	ID                 – primary key identifier.
//	EventID            – event the sale applies to.
//	PromoCode          – optional unique code; empty means automatic.
//	DiscountKind       – PERCENT or FIXED.
//	DiscountValue      – percentage (0–100) or amount in cents.
//	StartsAt           – opening of the sale window.
//	EndsAt             – closing of the sale window.
//	MaxRedemptions     – cap on redemptions; nil means uncapped.
//	CurrentRedemptions – redemptions consumed so far.
//	IsActive           – organizer kill switch.
//	CreatedAt          – creation timestamp.
//	UpdatedAt          – last update timestamp.
type FlashSale struct {
	ID                 uint64    // flash_sales.id
	EventID            uint64    // flash_sales.event_id
	PromoCode          string    // flash_sales.promo_code (unique, may be empty)
	DiscountKind       string    // flash_sales.discount_kind
	DiscountValue      uint32    // flash_sales.discount_value
	StartsAt           time.Time // flash_sales.starts_at
	EndsAt             time.Time // flash_sales.ends_at
	MaxRedemptions     *uint32   // flash_sales.max_redemptions (nullable)
	CurrentRedemptions uint32    // flash_sales.current_redemptions
	IsActive           bool      // flash_sales.is_active
	CreatedAt          time.Time // flash_sales.created_at
	UpdatedAt          time.Time // flash_sales.updated_at

	// CategoryIDs is loaded from flash_sale_categories.  An empty set
	// means the sale applies to every category of the event.
	CategoryIDs []uint64
}

// AppliesTo reports whether the sale covers the given ticket category.
func (f *FlashSale) AppliesTo(categoryID uint64) bool {
	if len(f.CategoryIDs) == 0 {
		return true
	}
	for _, id := range f.CategoryIDs {
		if id == categoryID {
			return true
		}
	}
	return false
}
