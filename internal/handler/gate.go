package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/service"
)

// GateHandler exposes the credential validation endpoint used by entry
// staff.  It is mounted behind the ORGANIZER/ADMIN role check: gate
// devices authenticate with staff accounts, never attendee accounts.
type GateHandler struct {
	Lifecycle *service.LifecycleService
}

func NewGateHandler(l *service.LifecycleService) *GateHandler {
	return &GateHandler{Lifecycle: l}
}

type validateReq struct {
	Credential string `json:"credential"`
}

// Validate handles POST /v1/gate/validate.  The response body always
// carries a "result" field so gate devices can branch on it without
// parsing error strings: admitted, already_used, not_recognized,
// invalid, unpaid.
func (h *GateHandler) Validate(c echo.Context) error {
	var req validateReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Credential) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "credential required", "result": "invalid"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Lifecycle.Validate(ctx, strings.TrimSpace(req.Credential))
	if err != nil {
		return c.JSON(statusFor(err), echo.Map{"error": err.Error(), "result": gateResult(err)})
	}
	return c.JSON(http.StatusOK, echo.Map{"result": "admitted", "ticket": res})
}

func gateResult(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusNotFound:
		return "not_recognized"
	case http.StatusConflict:
		if errors.Is(err, service.ErrOrderNotPaid) {
			return "unpaid"
		}
		return "already_used"
	default:
		return "error"
	}
}
