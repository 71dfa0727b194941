package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/amigo-montador/montador/internal/rating"
)

// ObligationResolver is the part of the rating gate the enforcer needs.
type ObligationResolver interface {
	ResolvePendingObligations(ctx context.Context, userID int64) ([]rating.Obligation, error)
}

// EnforceRatings answers 428 with the pending list while the caller owes a
// rating. Requests about a service the caller still has to rate pass, so
// the rating screen can load it.
func EnforceRatings(resolver ObligationResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := UserID(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			pending, err := resolver.ResolvePendingObligations(c.Request().Context(), userID)
			if err != nil {
				// Fail open: the rating endpoints surface storage errors themselves.
				log.WithError(err).WithField("user_id", userID).Warn("obligation check failed")
				return next(c)
			}
			if len(pending) == 0 {
				return next(c)
			}
			if id, err := strconv.ParseInt(c.Param("id"), 10, 64); err == nil {
				for _, o := range pending {
					if o.ServiceID == id {
						return next(c)
					}
				}
			}
			return c.JSON(http.StatusPreconditionRequired, echo.Map{
				"error":             "pending mandatory ratings",
				"code":              "RATING_REQUIRED",
				"pendingRatings":    pending,
				"hasPendingRatings": true,
			})
		}
	}
}
