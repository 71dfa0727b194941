package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	st, err := h.gate.Stats(c.Request().Context())
	if err != nil {
		log.WithError(err).Error("admin stats")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load stats"})
	}
	return c.JSON(http.StatusOK, st)
}
