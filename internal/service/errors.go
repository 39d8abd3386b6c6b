// Package service contains the business workflows of the ticketing
// core: the purchase orchestrator, the ticket lifecycle state machine,
// promo validation and wallet login.  Services own transaction
// boundaries and raise typed errors; handlers translate those to HTTP
// status codes and never see raw SQL errors.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/event-ticketing/internal/repository"
)

// ErrInvalidQuantity is returned when a purchase requests fewer than
// one unit.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// ErrQuantityExceedsLimit is returned when a purchase requests more
// units than the category's max_per_purchase allows.
var ErrQuantityExceedsLimit = errors.New("quantity exceeds per-purchase limit")

// ErrOrderTooLarge is returned when price times quantity does not fit
// the cent-denominated total column.
var ErrOrderTooLarge = errors.New("order total exceeds the representable amount")

// InsufficientInventoryError reports a lost inventory race together
// with the remaining availability read under lock, so the buyer learns
// how many units are still sellable.  It unwraps to
// repository.ErrInsufficientInventory for errors.Is checks.
type InsufficientInventoryError struct {
	Remaining uint32
}

func (e *InsufficientInventoryError) Error() string {
	if e.Remaining == 1 {
		return "only 1 ticket remains"
	}
	return fmt.Sprintf("only %d tickets remain", e.Remaining)
}

func (e *InsufficientInventoryError) Unwrap() error {
	return repository.ErrInsufficientInventory
}

// ErrSalesWindowClosed is returned when the category's sales window is
// set and the current time falls outside it.
var ErrSalesWindowClosed = errors.New("sales window closed")

// ErrPromoNotApplicable is returned when a promo code exists but does
// not cover the ticket category being bought.
var ErrPromoNotApplicable = errors.New("promo code not applicable to this category")

// ErrCredentialNotRecognized is returned when a well-formed credential
// does not match any issued ticket.  Gate staff treat this as
// potential fraud, unlike ErrAlreadyUsed which is a re-entry attempt.
var ErrCredentialNotRecognized = errors.New("credential not recognized")

// ErrOrderNotPaid is returned when a credential is scanned before the
// parent order was confirmed by the payment collaborator.
var ErrOrderNotPaid = errors.New("order not paid")

// ErrNotTransferable is returned when the unit being transferred is no
// longer ACTIVE.
var ErrNotTransferable = errors.New("ticket is not transferable")

// ErrSelfTransfer is returned when a transfer names the sender as the
// recipient.
var ErrSelfTransfer = errors.New("cannot transfer a ticket to yourself")

// ErrRecipientNotFound is returned when the transfer recipient email
// matches no account.
var ErrRecipientNotFound = errors.New("transfer recipient not found")

// ErrPartiallyUsed is returned when a refund is requested for an order
// with at least one redeemed unit.  Refunds are all-or-nothing.
var ErrPartiallyUsed = errors.New("order has used tickets and cannot be refunded")

// ErrNotRefundable is returned when refunding an order that is not in
// the PAID state.
var ErrNotRefundable = errors.New("order is not refundable")

// ErrBadChallenge is returned when a wallet login message does not
// reconstruct exactly from its claimed fields.
var ErrBadChallenge = errors.New("login message does not match challenge format")

// ErrChallengeExpired is returned when the signed timestamp falls
// outside the acceptance window.
var ErrChallengeExpired = errors.New("login challenge expired")

// ErrBadSignature is returned when the wallet signature does not
// verify against the address and message.
var ErrBadSignature = errors.New("wallet signature verification failed")

// ErrNonceReplayed is returned when a login nonce has already been
// consumed within its TTL.
var ErrNonceReplayed = errors.New("login nonce already used")
