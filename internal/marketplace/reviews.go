package marketplace

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	mw "github.com/amigo-montador/montador/internal/middleware"
	"github.com/amigo-montador/montador/internal/rating"
)

// Handler serves the rating endpoints.
type Handler struct {
	gate *rating.Gate
}

func NewHandler(gate *rating.Gate) *Handler {
	return &Handler{gate: gate}
}

func serviceIDParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// RateService lets a participant rate the counterpart of a service
func (h *Handler) RateService(c echo.Context) error {
	userID, ok := mw.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	serviceID, ok := serviceIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid service id"})
	}

	var req RateServiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, validationError(err), nil)
	}

	submit, err := req.toSubmit(serviceID, userID)
	if err != nil {
		return respondError(c, err, nil)
	}

	ctx := c.Request().Context()
	res, err := h.gate.SubmitRating(ctx, submit)
	if errors.Is(err, rating.ErrDuplicateRating) {
		// A stale client re-submitting: hand back the fresh list so it can
		// drop the prompt.
		extra := echo.Map{}
		if pending, rerr := h.gate.ResolvePendingObligations(ctx, userID); rerr == nil {
			m := newMandatoryRatings(pending)
			extra["pendingRatings"] = m.PendingRatings
			extra["hasPendingRatings"] = m.HasPendingRatings
		}
		return respondError(c, err, extra)
	}
	if err != nil {
		return respondError(c, err, nil)
	}

	pending, err := h.gate.ResolvePendingObligations(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("refresh obligations after rating")
	}
	m := newMandatoryRatings(pending)
	return c.JSON(http.StatusCreated, RateServiceResponse{
		Rating:            res.Rating,
		Service:           res.Service,
		State:             res.Service.GateState(),
		PendingRatings:    m.PendingRatings,
		HasPendingRatings: m.HasPendingRatings,
		Message:           "Rating submitted successfully",
	})
}

func (r RateServiceRequest) toSubmit(serviceID, userID int64) (rating.SubmitRequest, error) {
	score, err := rating.ScoreFromFloat(*r.Rating)
	if err != nil {
		return rating.SubmitRequest{}, err
	}
	out := rating.SubmitRequest{
		ServiceID:  serviceID,
		FromUserID: userID,
		ToUserID:   r.ToUserID,
		Score:      score,
		Comment:    r.Comment,
	}
	for _, sub := range []struct {
		in  *float64
		out **int
	}{
		{r.PunctualityRating, &out.SubScores.Punctuality},
		{r.QualityRating, &out.SubScores.Quality},
		{r.ComplianceRating, &out.SubScores.Compliance},
	} {
		if sub.in == nil {
			continue
		}
		n, err := rating.ScoreFromFloat(*sub.in)
		if err != nil {
			return rating.SubmitRequest{}, err
		}
		*sub.out = &n
	}
	return out, nil
}

// validationError maps struct tag failures onto the rating errors.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch fe.Field() {
			case "Comment":
				return rating.ErrInvalidComment
			case "ToUserID":
				return rating.ErrInvalidCounterpart
			}
		}
	}
	return rating.ErrInvalidRatingValue
}

// ListServiceRatings returns the ratings of a service, newest first
func (h *Handler) ListServiceRatings(c echo.Context) error {
	serviceID, ok := serviceIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid service id"})
	}
	svc, err := h.authorizedService(c, serviceID)
	if err != nil {
		return respondError(c, err, nil)
	}
	ratings, err := h.gate.ListRatingsForService(c.Request().Context(), svc.ID)
	if err != nil {
		return respondError(c, err, nil)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ratings": ratings,
		"state":   svc.GateState(),
	})
}

// GetService returns a service with its rating progress
func (h *Handler) GetService(c echo.Context) error {
	serviceID, ok := serviceIDParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid service id"})
	}
	svc, err := h.authorizedService(c, serviceID)
	if err != nil {
		return respondError(c, err, nil)
	}
	ratings, err := h.gate.ListRatingsForService(c.Request().Context(), svc.ID)
	if err != nil {
		return respondError(c, err, nil)
	}
	userID, _ := mw.UserID(c)
	role, _ := svc.RoleOf(userID)
	return c.JSON(http.StatusOK, ServiceView{
		Service: svc,
		State:   svc.GateState(),
		MyRole:  role,
		IRated:  role != "" && svc.RatedBy(role),
		Ratings: ratings,
	})
}

// authorizedService loads a service the caller takes part in. Admins see
// every service.
func (h *Handler) authorizedService(c echo.Context, serviceID int64) (*rating.Service, error) {
	svc, err := h.gate.Service(c.Request().Context(), serviceID)
	if err != nil {
		return nil, err
	}
	if mw.Role(c) == mw.RoleAdmin {
		return svc, nil
	}
	userID, _ := mw.UserID(c)
	if _, ok := svc.RoleOf(userID); !ok {
		return nil, rating.ErrNotParticipant
	}
	return svc, nil
}

// UserRatingSummary returns the ranking summary and received ratings of a user
func (h *Handler) UserRatingSummary(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	// Parse pagination parameters
	page := 1
	limit := 10
	if pageParam := c.QueryParam("page"); pageParam != "" {
		if p, err := strconv.Atoi(pageParam); err == nil && p > 0 {
			page = p
		}
	}
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil && l > 0 && l <= 50 {
			limit = l
		}
	}

	ctx := c.Request().Context()
	summary, err := h.gate.SummaryFor(ctx, userID)
	if err != nil {
		return respondError(c, err, nil)
	}
	received, err := h.gate.RatingsReceived(ctx, userID)
	if err != nil {
		return respondError(c, err, nil)
	}

	offset := (page - 1) * limit
	if offset > len(received) {
		offset = len(received)
	}
	end := offset + limit
	if end > len(received) {
		end = len(received)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"summary": summary,
		"ratings": received[offset:end],
		"pagination": echo.Map{
			"page":  page,
			"limit": limit,
			"total": summary.TotalRatings,
		},
	})
}
