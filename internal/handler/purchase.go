package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/credential"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/service"
)

// PurchaseHandler exposes the buyer-facing purchase endpoints.
type PurchaseHandler struct {
	Purchases *service.PurchaseService
	Lifecycle *service.LifecycleService
}

func NewPurchaseHandler(p *service.PurchaseService, l *service.LifecycleService) *PurchaseHandler {
	return &PurchaseHandler{Purchases: p, Lifecycle: l}
}

// ----- DTOs -----

type purchaseReq struct {
	CategoryID uint64 `json:"category_id"`
	Quantity   uint32 `json:"quantity"`
	PromoCode  string `json:"promo_code"`
}

type credentialPart struct {
	TicketSerial string `json:"ticket_serial"`
	Payload      string `json:"payload"`
	QRPNG        string `json:"qr_png"` // base64-encoded PNG
}

type purchaseResp struct {
	OrderID          uint64           `json:"order_id"`
	OrderReference   string           `json:"order_reference"`
	TotalAmountCents uint32           `json:"total_amount_cents"`
	Credentials      []credentialPart `json:"credentials"`
}

type transferReq struct {
	RecipientEmail string `json:"recipient_email"`
}

func credentialParts(creds []credential.Credential) []credentialPart {
	out := make([]credentialPart, 0, len(creds))
	for _, cr := range creds {
		out = append(out, credentialPart{
			TicketSerial: cr.TicketSerial,
			Payload:      cr.Payload,
			QRPNG:        base64.StdEncoding.EncodeToString(cr.PNG),
		})
	}
	return out
}

// Purchase handles POST /v1/purchases.  The heavy lifting lives in the
// service; the handler only binds, delegates and renders.
func (h *PurchaseHandler) Purchase(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == 0 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req purchaseReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.CategoryID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "category_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Purchases.Purchase(ctx, service.PurchaseInput{
		UserID:     uid,
		CategoryID: req.CategoryID,
		Quantity:   req.Quantity,
		PromoCode:  strings.TrimSpace(req.PromoCode),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, purchaseResp{
		OrderID:          res.OrderID,
		OrderReference:   res.OrderReference,
		TotalAmountCents: res.TotalAmountCents,
		Credentials:      credentialParts(res.Credentials),
	})
}

// MyOrders handles GET /v1/my-orders.
func (h *PurchaseHandler) MyOrders(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == 0 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	orders, err := h.Purchases.ListOrders(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": orders})
}

// Credentials handles GET /v1/orders/:id/credentials and re-renders the
// QR credentials of the caller's own order.
func (h *PurchaseHandler) Credentials(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == 0 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	creds, err := h.Purchases.GetCredentials(ctx, orderID, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"credentials": credentialParts(creds)})
}

// MarkPaid handles POST /v1/orders/:id/mark-paid.  It stands in for
// the payment collaborator's confirmation callback and is restricted
// to ADMIN in the router.
func (h *PurchaseHandler) MarkPaid(c echo.Context) error {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Purchases.MarkPaid(ctx, orderID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.OrderStatusPaid})
}

// Refund handles POST /v1/orders/:id/refund (ADMIN).  Refunds are
// whole-order: every unit returns to inventory or none does.
func (h *PurchaseHandler) Refund(c echo.Context) error {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Lifecycle.Refund(ctx, orderID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": model.OrderStatusRefunded})
}

// Transfer handles POST /v1/tickets/:id/transfer.  The :id is the
// ticket purchase ID; only its current owner may transfer it.
func (h *PurchaseHandler) Transfer(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == 0 {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	purchaseID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || purchaseID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	var req transferReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RecipientEmail) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "recipient_email required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Lifecycle.Transfer(ctx, purchaseID, uid, strings.TrimSpace(req.RecipientEmail)); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ValidatePromo handles GET /v1/events/:id/promos/:code.  It is a
// read-only preview; the binding redemption happens inside the
// purchase transaction.
func (h *PurchaseHandler) ValidatePromo(c echo.Context) error {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "promo code required"})
	}
	var categoryID uint64
	if q := c.QueryParam("category_id"); q != "" {
		categoryID, err = strconv.ParseUint(q, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid category_id"})
		}
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sale, err := h.Purchases.ValidatePromo(ctx, eventID, code, categoryID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"code":           sale.PromoCode,
		"discount_kind":  sale.DiscountKind,
		"discount_value": sale.DiscountValue,
		"starts_at":      sale.StartsAt,
		"ends_at":        sale.EndsAt,
	})
}
