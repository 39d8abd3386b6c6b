package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/credential"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// statusFor maps the domain error taxonomy onto HTTP status codes.
// Unknown errors fall through to 500 so an unexpected failure is never
// mistaken for a client mistake.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrQuantityExceedsLimit),
		errors.Is(err, service.ErrOrderTooLarge),
		errors.Is(err, service.ErrSelfTransfer),
		errors.Is(err, credential.ErrInvalidFormat),
		errors.Is(err, service.ErrBadChallenge):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrBadSignature),
		errors.Is(err, service.ErrChallengeExpired),
		errors.Is(err, service.ErrNonceReplayed):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrCategoryNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrPurchaseNotFound),
		errors.Is(err, repository.ErrEventNotFound),
		errors.Is(err, repository.ErrPromoNotFound),
		errors.Is(err, service.ErrRecipientNotFound),
		errors.Is(err, service.ErrCredentialNotRecognized):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientInventory),
		errors.Is(err, repository.ErrPromoExhausted),
		errors.Is(err, repository.ErrAlreadyUsed),
		errors.Is(err, repository.ErrEmailExists),
		errors.Is(err, service.ErrNotTransferable),
		errors.Is(err, service.ErrNotRefundable),
		errors.Is(err, service.ErrPartiallyUsed),
		errors.Is(err, service.ErrOrderNotPaid):
		return http.StatusConflict
	case errors.Is(err, service.ErrSalesWindowClosed),
		errors.Is(err, service.ErrPromoNotApplicable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail renders a domain error as the standard {"error": "..."} body the
// rest of the API uses.  Internal errors get a generic message so
// database details never leak to clients.
func fail(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he // already carries its own status and message
	}
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	return c.JSON(code, echo.Map{"error": msg})
}
