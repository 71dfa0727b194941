package marketplace

import (
	"github.com/labstack/echo/v4"

	mw "github.com/amigo-montador/montador/internal/middleware"
	"github.com/amigo-montador/montador/internal/rating"
)

// Routes mounts the rating endpoints and returns the authenticated and admin
// groups so other packages can hang their routes on them.
func Routes(e *echo.Echo, h *Handler, jwtSecret []byte) (api, admin *echo.Group) {
	if e.Validator == nil {
		e.Validator = mw.NewValidator()
	}

	// Public
	e.GET("/users/:id/ratings/summary", h.UserRatingSummary)
	e.GET("/ranking/:userType", h.Ranking)

	// Protected routes
	api = e.Group("")
	api.Use(mw.JWT(jwtSecret))

	api.GET("/mandatory-ratings", h.MandatoryRatings)
	api.GET("/mandatory-ratings/block", h.MustBlock)
	api.GET("/services/pending-evaluations", h.MandatoryRatings)
	api.POST("/services/:id/rate", h.RateService, mw.RequireRoles(string(rating.RoleStore), string(rating.RoleAssembler)))
	api.GET("/services/:id/ratings", h.ListServiceRatings)
	api.GET("/services/:id", h.GetService, mw.EnforceRatings(h.gate))

	// Admin routes
	admin = e.Group("/admin")
	admin.Use(mw.JWT(jwtSecret))
	admin.Use(mw.AdminGuard)

	admin.POST("/services/:id/payment/confirm", h.ConfirmPayment)
	admin.POST("/services/:id/cancel", h.CancelService)
	admin.POST("/services/:id/reconcile", h.ReconcileService)

	return api, admin
}
