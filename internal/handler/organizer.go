package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// OrganizerHandler exposes the event-management surface: events,
// ticket categories and flash sales.  Every mutation on an existing
// event first checks ownership through EventRepo.IsOwnedBy.
type OrganizerHandler struct {
	Events     *repository.EventRepo
	Categories *repository.TicketCategoryRepo
	Sales      *repository.FlashSaleRepo
}

func NewOrganizerHandler(e *repository.EventRepo, c *repository.TicketCategoryRepo, s *repository.FlashSaleRepo) *OrganizerHandler {
	return &OrganizerHandler{Events: e, Categories: c, Sales: s}
}

// ----- DTOs -----

type createEventReq struct {
	Title       string    `json:"title"`
	Venue       string    `json:"venue"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	IsPublished bool      `json:"is_published"`
}

type createCategoryReq struct {
	Name           string     `json:"name"`
	PriceCents     uint32     `json:"price_cents"`
	TotalQuantity  uint32     `json:"total_quantity"`
	MaxPerPurchase uint32     `json:"max_per_purchase"`
	SalesStartAt   *time.Time `json:"sales_start_at"`
	SalesEndAt     *time.Time `json:"sales_end_at"`
}

type updatePriceReq struct {
	PriceCents uint32 `json:"price_cents"`
}

type createSaleReq struct {
	PromoCode      string    `json:"promo_code"`
	DiscountKind   string    `json:"discount_kind"` // PERCENT | FIXED
	DiscountValue  uint32    `json:"discount_value"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	MaxRedemptions *uint32   `json:"max_redemptions"`
	CategoryIDs    []uint64  `json:"category_ids"`
}

// ownEvent parses the :id param and verifies the caller owns the event.
func (h *OrganizerHandler) ownEvent(c echo.Context, ctx context.Context) (uint64, error) {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}
	if err := h.Events.IsOwnedBy(ctx, eventID, middleware.UserID(c)); err != nil {
		return 0, err
	}
	return eventID, nil
}

// CreateEvent handles POST /v1/events.
func (h *OrganizerHandler) CreateEvent(c echo.Context) error {
	uid := middleware.UserID(c)
	var req createEventReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title required"})
	}
	if !req.EndsAt.After(req.StartsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must follow starts_at"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ev := model.Event{
		OrganizerID: uid,
		Title:       req.Title,
		Venue:       strings.TrimSpace(req.Venue),
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		IsPublished: req.IsPublished,
	}
	if err := h.Events.Create(ctx, &ev); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, ev)
}

// GetEvent handles GET /v1/events/:id (public browse).
func (h *OrganizerHandler) GetEvent(c echo.Context) error {
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ev, err := h.Events.GetByID(ctx, eventID)
	if err != nil {
		return fail(c, err)
	}
	cats, err := h.Categories.ListByEvent(ctx, eventID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"event": ev, "categories": cats})
}

// CreateCategory handles POST /v1/events/:id/categories.
func (h *OrganizerHandler) CreateCategory(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	eventID, err := h.ownEvent(c, ctx)
	if err != nil {
		return fail(c, err)
	}
	var req createCategoryReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Name) == "" || req.TotalQuantity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and total_quantity required"})
	}
	cat := model.TicketCategory{
		EventID:        eventID,
		Name:           strings.TrimSpace(req.Name),
		PriceCents:     req.PriceCents,
		TotalQuantity:  req.TotalQuantity,
		MaxPerPurchase: req.MaxPerPurchase,
		SalesStartAt:   req.SalesStartAt,
		SalesEndAt:     req.SalesEndAt,
	}
	if err := h.Categories.Create(ctx, &cat); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, cat)
}

// UpdateCategoryPrice handles PATCH /v1/events/:id/categories/:cid/price.
// Existing order items keep their snapshot price; only future
// purchases see the change.
func (h *OrganizerHandler) UpdateCategoryPrice(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	eventID, err := h.ownEvent(c, ctx)
	if err != nil {
		return fail(c, err)
	}
	catID, err := strconv.ParseUint(c.Param("cid"), 10, 64)
	if err != nil || catID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid category id"})
	}
	cat, err := h.Categories.GetByID(ctx, catID)
	if err != nil {
		return fail(c, err)
	}
	if cat.EventID != eventID {
		return fail(c, repository.ErrCategoryNotFound)
	}
	var req updatePriceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.Categories.UpdatePrice(ctx, catID, req.PriceCents); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateFlashSale handles POST /v1/events/:id/flash-sales.
func (h *OrganizerHandler) CreateFlashSale(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	eventID, err := h.ownEvent(c, ctx)
	if err != nil {
		return fail(c, err)
	}
	var req createSaleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	kind := strings.ToUpper(strings.TrimSpace(req.DiscountKind))
	if kind != model.DiscountKindPercent && kind != model.DiscountKindFixed {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "discount_kind must be PERCENT or FIXED"})
	}
	if kind == model.DiscountKindPercent && req.DiscountValue > 100 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "percent discount exceeds 100"})
	}
	if !req.EndsAt.After(req.StartsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must follow starts_at"})
	}
	sale := model.FlashSale{
		EventID:        eventID,
		PromoCode:      strings.ToUpper(strings.TrimSpace(req.PromoCode)),
		DiscountKind:   kind,
		DiscountValue:  req.DiscountValue,
		StartsAt:       req.StartsAt.UTC(),
		EndsAt:         req.EndsAt.UTC(),
		MaxRedemptions: req.MaxRedemptions,
		IsActive:       true,
		CategoryIDs:    req.CategoryIDs,
	}
	if err := h.Sales.Create(ctx, &sale); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, sale)
}
