package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// Handlers bundles every handler the router mounts.
type Handlers struct {
	Auth      *handler.AuthHandler
	Purchase  *handler.PurchaseHandler
	Gate      *handler.GateHandler
	Organizer *handler.OrganizerHandler
}

// Register mounts all routes on the provided Echo instance.
// purchaseLimit is the rate-limit middleware applied to the purchase
// endpoint; pass nil to disable (tests, or Redis unavailable).
func Register(e *echo.Echo, h Handlers, jwtSecret string, purchaseLimit echo.MiddlewareFunc) {
	// Operational endpoints.  No auth: load balancers and Prometheus
	// scrape these directly.
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Session endpoints under /v1/auth need no existing session.
	auth := e.Group("/v1/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", h.Auth.Logout)
	auth.POST("/wallet/challenge", h.Auth.WalletChallenge)
	auth.POST("/wallet/login", h.Auth.WalletLogin)

	// Public browse endpoints.
	e.GET("/v1/events/:id", h.Organizer.GetEvent)
	e.GET("/v1/events/:id/promos/:code", h.Purchase.ValidatePromo)

	// Everything below requires a valid access token.
	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(jwtSecret))

	v1.GET("/me", h.Auth.Me)

	// Buyer surface.  Any authenticated role may buy.
	buyer := v1.Group("")
	buyer.Use(middleware.RequireRole(model.RoleCustomer, model.RoleOrganizer, model.RoleAdmin))
	if purchaseLimit != nil {
		buyer.POST("/purchases", h.Purchase.Purchase, purchaseLimit)
	} else {
		buyer.POST("/purchases", h.Purchase.Purchase)
	}
	buyer.GET("/my-orders", h.Purchase.MyOrders)
	buyer.GET("/orders/:id/credentials", h.Purchase.Credentials)
	buyer.POST("/tickets/:id/transfer", h.Purchase.Transfer)

	// Gate surface: entry staff devices.
	gate := v1.Group("/gate")
	gate.Use(middleware.RequireRole(model.RoleOrganizer, model.RoleAdmin))
	gate.POST("/validate", h.Gate.Validate)

	// Organizer surface: event management.
	org := v1.Group("/events")
	org.Use(middleware.RequireRole(model.RoleOrganizer, model.RoleAdmin))
	org.POST("", h.Organizer.CreateEvent)
	org.POST("/:id/categories", h.Organizer.CreateCategory)
	org.PATCH("/:id/categories/:cid/price", h.Organizer.UpdateCategoryPrice)
	org.POST("/:id/flash-sales", h.Organizer.CreateFlashSale)

	// Back-office operations restricted to ADMIN: the payment
	// confirmation stand-in and whole-order refunds.
	admin := v1.Group("/orders")
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	admin.POST("/:id/mark-paid", h.Purchase.MarkPaid)
	admin.POST("/:id/refund", h.Purchase.Refund)
}
