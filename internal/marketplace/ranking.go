package marketplace

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/amigo-montador/montador/internal/rating"
)

// Ranking lists the best rated users of one type. Public.
func (h *Handler) Ranking(c echo.Context) error {
	role := rating.Role(c.Param("userType"))
	if !role.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "userType must be lojista or montador"})
	}

	limit := rating.DefaultRankingLimit
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil && l > 0 && l <= rating.MaxRankingLimit {
			limit = l
		}
	}

	ranking, err := h.gate.Ranking(c.Request().Context(), role, limit)
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"userType":   role,
		"ranking":    ranking,
		"totalUsers": len(ranking),
	})
}
