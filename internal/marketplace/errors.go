package marketplace

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/amigo-montador/montador/internal/rating"
)

type errorMapping struct {
	status  int
	code    string
	message string
}

var errorTable = []struct {
	err error
	errorMapping
}{
	{rating.ErrInvalidRatingValue, errorMapping{status: http.StatusBadRequest, code: "INVALID_RATING_VALUE"}},
	{rating.ErrInvalidComment, errorMapping{status: http.StatusBadRequest, code: "INVALID_COMMENT"}},
	{rating.ErrNotReadyForEvaluation, errorMapping{status: http.StatusBadRequest, code: "NOT_READY_FOR_EVALUATION"}},
	{rating.ErrInvalidCounterpart, errorMapping{status: http.StatusBadRequest, code: "INVALID_COUNTERPART"}},
	{rating.ErrNotParticipant, errorMapping{status: http.StatusForbidden, code: "NOT_PARTICIPANT"}},
	{rating.ErrNotFound, errorMapping{status: http.StatusNotFound, code: "NOT_FOUND"}},
	{rating.ErrDuplicateRating, errorMapping{status: http.StatusConflict, code: "DUPLICATE_RATING"}},
	{rating.ErrInvalidTransition, errorMapping{status: http.StatusConflict, code: "INVALID_TRANSITION"}},
	{rating.ErrSameParticipant, errorMapping{status: http.StatusConflict, code: "SAME_PARTICIPANT"}},
	{rating.ErrStorageUnavailable, errorMapping{status: http.StatusServiceUnavailable, code: "STORAGE_UNAVAILABLE"}},
}

func classify(err error) errorMapping {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			m := e.errorMapping
			m.message = e.err.Error()
			return m
		}
	}
	return errorMapping{http.StatusInternalServerError, "INTERNAL", "internal error"}
}

// respondError writes the JSON error for err. extra is merged into the body.
func respondError(c echo.Context, err error, extra echo.Map) error {
	m := classify(err)
	body := echo.Map{"error": m.message, "code": m.code}
	switch m.status {
	case http.StatusServiceUnavailable:
		log.WithError(err).WithField("path", c.Path()).Warn("storage unavailable")
		body["retryable"] = true
	case http.StatusInternalServerError:
		log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(m.status, body)
}
