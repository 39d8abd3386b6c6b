// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios with errors.Is, instead of parsing driver errors. For
// example, ErrInsufficientInventory signals that a conditional
// inventory decrement matched no row, while ErrForbidden indicates
// that the current user is not authorized to act on a resource owned
// by someone else.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrInsufficientInventory is returned when a conditional decrement of
// ticket_categories.available_quantity affects no row because fewer
// units remain than were requested. The purchase transaction must be
// rolled back when it is observed.
var ErrInsufficientInventory = errors.New("insufficient inventory")

// ErrCategoryNotFound is returned when no ticket category exists for
// the given id.
var ErrCategoryNotFound = errors.New("ticket category not found")

// ErrOrderNotFound is returned when no order exists for the given id.
var ErrOrderNotFound = errors.New("order not found")

// ErrPurchaseNotFound is returned when no ticket purchase exists for
// the given id or serial.
var ErrPurchaseNotFound = errors.New("ticket purchase not found")

// ErrEventNotFound is returned when no event exists for the given id.
var ErrEventNotFound = errors.New("event not found")

// ErrUserNotFound is returned when no user matches the given id, email
// or wallet address.
var ErrUserNotFound = errors.New("user not found")

// ErrPromoNotFound is returned when no active flash sale matches the
// given promo code for the event.
var ErrPromoNotFound = errors.New("promo code not found")

// ErrPromoExhausted is returned when the conditional redemption
// increment affects no row because the sale's max_redemptions cap has
// been reached (or the sale window closed between lookup and redeem).
var ErrPromoExhausted = errors.New("promo code exhausted")

// ErrAlreadyUsed is returned when a conditional ACTIVE->USED transition
// affects no row because the unit was already redeemed, refunded or
// otherwise left the ACTIVE state.
var ErrAlreadyUsed = errors.New("ticket already used")

// ErrEmailExists is returned when inserting a user with a duplicate
// email address.
var ErrEmailExists = errors.New("email already exists")
