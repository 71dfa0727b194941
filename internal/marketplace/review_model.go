package marketplace

import "github.com/amigo-montador/montador/internal/rating"

// RateServiceRequest is the rating payload. Scores arrive as JSON numbers,
// whole values only.
type RateServiceRequest struct {
	Rating            *float64 `json:"rating" validate:"required"`
	Comment           *string  `json:"comment" validate:"omitempty,max=1000"`
	PunctualityRating *float64 `json:"punctualityRating"`
	QualityRating     *float64 `json:"qualityRating"`
	ComplianceRating  *float64 `json:"complianceRating"`
	ToUserID          int64    `json:"toUserId" validate:"omitempty,gt=0"`
}

// RateServiceResponse is returned after a rating was stored.
type RateServiceResponse struct {
	Rating            *rating.Rating      `json:"rating"`
	Service           *rating.Service     `json:"service"`
	State             rating.GateState    `json:"state"`
	PendingRatings    []rating.Obligation `json:"pendingRatings"`
	HasPendingRatings bool                `json:"hasPendingRatings"`
	Message           string              `json:"message"`
}

// MandatoryRatingsResponse is the shape the clients poll.
type MandatoryRatingsResponse struct {
	PendingRatings    []rating.Obligation `json:"pendingRatings"`
	HasPendingRatings bool                `json:"hasPendingRatings"`
}

func newMandatoryRatings(pending []rating.Obligation) MandatoryRatingsResponse {
	if pending == nil {
		pending = []rating.Obligation{}
	}
	return MandatoryRatingsResponse{PendingRatings: pending, HasPendingRatings: len(pending) > 0}
}

// ServiceView is a service as seen by one of its participants.
type ServiceView struct {
	*rating.Service
	State   rating.GateState `json:"state"`
	MyRole  rating.Role      `json:"myRole"`
	IRated  bool             `json:"iRated"`
	Ratings []rating.Rating  `json:"ratings"`
}
