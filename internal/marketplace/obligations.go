package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"

	mw "github.com/amigo-montador/montador/internal/middleware"
)

// MandatoryRatings lists the ratings the caller still owes. Clients poll it.
func (h *Handler) MandatoryRatings(c echo.Context) error {
	userID, ok := mw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	pending, err := h.gate.ResolvePendingObligations(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, newMandatoryRatings(pending))
}

// MustBlock tells the client whether to keep the rating prompt up.
func (h *Handler) MustBlock(c echo.Context) error {
	userID, ok := mw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	block, err := h.gate.MustBlock(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{"mustBlock": block})
}
