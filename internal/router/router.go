package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/bus-charter-booking/internal/handler"
	"github.com/iliyamo/bus-charter-booking/internal/middleware"
	"github.com/iliyamo/bus-charter-booking/internal/model"
)

// RegisterRoutes registers the operational endpoints: a health check that
// pings the database and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, gatherer prometheus.Gatherer) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// RegisterAuth registers the administrator session endpoints under /v1/auth.
// None of them needs an access token; logout accepts either a refresh token
// in the body or a bearer token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login, limit)
	g.POST("/refresh", a.Refresh, limit)
	g.POST("/logout", a.Logout)
}

// RegisterPublic registers the anonymous customer API.  Writes go through
// the rate limiter; the two read-mostly lookups go through the response
// cache.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, limit, cache echo.MiddlewareFunc) {
	v1 := e.Group("/v1")

	v1.POST("/quotes", p.Quote, limit)
	v1.POST("/reservations", p.CreateReservation, limit)
	v1.GET("/reservations/:ref", p.GetReservation)
	v1.POST("/reservations/:ref/cost", p.RecalculateCost, limit)
	v1.POST("/reservations/:ref/checkout", p.Checkout, limit)
	v1.POST("/reservations/:ref/refunds", p.RequestRefund, limit)
	v1.POST("/reservations/:ref/cancellation", p.RequestCancellation, limit)

	// The gateway sends the browser here; both always answer with a 302.
	v1.GET("/payments/success", p.PaymentSuccess)
	v1.GET("/payments/cancel", p.PaymentCancel)
	// Server to server, authenticated by the payload signature.
	v1.POST("/webhooks/payment", p.Webhook)

	v1.GET("/buses/available", p.AvailableBuses, cache)
	v1.GET("/fuel-prices/current", p.CurrentFuelPrice, cache)
}

// RegisterAdmin registers the back-office API under /v1/admin.  Every route
// requires a valid access token carrying the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))

	g.GET("/me", a.Me)

	g.GET("/reservations", h.ListReservations)
	g.GET("/reservations/:id", h.GetReservation)
	g.PUT("/reservations/:id/status", h.UpdateReservationStatus)
	g.PUT("/reservations/:id/bus", h.AssignBus)
	g.PUT("/reservations/:id/cost", h.AdjustCost)
	g.DELETE("/reservations/:id", h.DeleteReservation)
	g.POST("/reservations/:id/payments", h.ManualPayment)
	g.POST("/reservations/:id/cancellation/approve", h.ApproveCancellation)
	g.POST("/reservations/:id/cancellation/reject", h.RejectCancellation)

	g.POST("/invoices/:id/confirm", h.ConfirmInvoice)

	g.GET("/refunds", h.ListRefunds)
	g.POST("/refunds/:id/process", h.ProcessRefund)

	g.GET("/buses", h.ListBuses)
	g.POST("/buses", h.CreateBus)
	g.PUT("/buses/:id/status", h.UpdateBusStatus)

	g.GET("/fuel-prices", h.ListFuelPrices)
	g.POST("/fuel-prices", h.CreateFuelPrice)
}
