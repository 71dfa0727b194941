package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/amigo-montador/montador/internal/rating"
)

type Handler struct {
	gate *rating.Gate
}

func NewHandler(gate *rating.Gate) *Handler {
	return &Handler{gate: gate}
}

// Routes mounts the read-only admin views on a group already behind
// AdminGuard.
func (h *Handler) Routes(g *echo.Group) {
	g.GET("/stats", h.Stats)
	g.GET("/services", h.ListServices)
}

// GET /admin/services?status=awaiting-evaluation
func (h *Handler) ListServices(c echo.Context) error {
	status := rating.ServiceStatus(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}
	items, err := h.gate.ListServices(c.Request().Context(), status)
	if err != nil {
		log.WithError(err).Error("admin list services")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch services"})
	}

	out := make([]echo.Map, 0, len(items))
	for i := range items {
		s := &items[i]
		out = append(out, echo.Map{
			"service": s,
			"state":   s.GateState(),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"services": out})
}
