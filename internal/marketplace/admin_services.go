package marketplace

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	mw "github.com/amigo-montador/montador/internal/middleware"
	"github.com/amigo-montador/montador/internal/rating"
)

// ConfirmPayment - Admin confirms the payment proof of a service, which opens
// the mandatory rating for both participants.
func (h *Handler) ConfirmPayment(c echo.Context) error {
	return h.adminTransition(c, "payment confirmed", h.gate.ConfirmPayment)
}

// CancelService - Admin cancels a service; any pending rating is dropped.
func (h *Handler) CancelService(c echo.Context) error {
	return h.adminTransition(c, "service cancelled", h.gate.CancelService)
}

// ReconcileService - Admin rebuilds the completion flags from the ratings.
func (h *Handler) ReconcileService(c echo.Context) error {
	return h.adminTransition(c, "service reconciled", h.gate.Reconcile)
}

type transition func(ctx context.Context, serviceID int64) (*rating.Service, error)

func (h *Handler) adminTransition(c echo.Context, message string, fn transition) error {
	adminID, ok := mw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	serviceID, ok := serviceIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid service id"})
	}

	svc, err := fn(c.Request().Context(), serviceID)
	if err != nil {
		return respondError(c, err, nil)
	}
	log.WithFields(log.Fields{"service_id": serviceID, "admin_id": adminID}).Info(message)
	return c.JSON(http.StatusOK, echo.Map{
		"message": message,
		"service": svc,
		"state":   svc.GateState(),
	})
}
