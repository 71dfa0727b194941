package rating

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxCommentLength = 1000
	defaultSubScore  = 5
)

// SubmitRequest is one rating submission. ToUserID is optional: the rated
// user is always the other participant of the service, a non-zero value
// is only checked against it.
type SubmitRequest struct {
	ServiceID  int64
	FromUserID int64
	ToUserID   int64
	Score      int
	Comment    *string
	SubScores  SubScores
}

// Submission is what SubmitRating stored together with the service state it
// left behind.
type Submission struct {
	Rating  *Rating  `json:"rating"`
	Service *Service `json:"service"`
}

// ScoreFromFloat accepts wire values such as 4 or 4.0 and rejects anything
// that is not a whole number.
func ScoreFromFloat(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, ErrInvalidRatingValue
	}
	n := int(v)
	if !validScore(n) {
		return 0, ErrInvalidRatingValue
	}
	return n, nil
}

func validScore(n int) bool { return n >= 1 && n <= 5 }

func (g *Gate) validate(req SubmitRequest) error {
	if !validScore(req.Score) {
		return ErrInvalidRatingValue
	}
	for _, sub := range []*int{req.SubScores.Punctuality, req.SubScores.Quality, req.SubScores.Compliance} {
		if sub != nil && !validScore(*sub) {
			return ErrInvalidRatingValue
		}
	}
	comment := ""
	if req.Comment != nil {
		comment = strings.TrimSpace(*req.Comment)
	}
	n := utf8.RuneCountInString(comment)
	if n > maxCommentLength {
		return ErrInvalidComment
	}
	if g.minCommentLength > 0 && n < g.minCommentLength {
		return ErrInvalidComment
	}
	return nil
}

func subScoreOrDefault(v *int) int {
	if v == nil {
		return defaultSubScore
	}
	return *v
}

// SubmitRating records the caller's rating and updates the completion flags
// in the same transaction. A second submission for the same service and
// rater fails with ErrDuplicateRating and changes nothing.
func (g *Gate) SubmitRating(ctx context.Context, req SubmitRequest) (*Submission, error) {
	ctx, span := tracer.Start(ctx, "rating.SubmitRating", trace.WithAttributes(
		attribute.Int64("service.id", req.ServiceID),
		attribute.Int64("user.id", req.FromUserID),
	))
	defer span.End()

	if err := g.validate(req); err != nil {
		return nil, err
	}

	var (
		out       Submission
		role      Role
		completed bool
	)
	err := g.repo.WithinTx(ctx, func(tx Tx) error {
		svc, err := tx.LockService(ctx, req.ServiceID)
		if err != nil {
			return err
		}
		if !svc.ReadyForEvaluation() {
			return ErrNotReadyForEvaluation
		}
		r, ok := svc.RoleOf(req.FromUserID)
		if !ok {
			return ErrNotParticipant
		}
		role = r
		to := svc.Counterpart(role)
		if req.ToUserID != 0 && req.ToUserID != to.ID {
			return ErrInvalidCounterpart
		}

		rated, err := tx.HasRated(ctx, svc.ID, req.FromUserID)
		if err != nil {
			return err
		}
		if rated {
			return ErrDuplicateRating
		}

		rt := &Rating{
			ServiceID:         svc.ID,
			FromUserID:        req.FromUserID,
			ToUserID:          to.ID,
			FromUserType:      role,
			ToUserType:        counterRole(role),
			Score:             req.Score,
			PunctualityRating: subScoreOrDefault(req.SubScores.Punctuality),
			QualityRating:     subScoreOrDefault(req.SubScores.Quality),
			ComplianceRating:  subScoreOrDefault(req.SubScores.Compliance),
			EmojiRating:       EmojiFor(req.Score),
			IsLatest:          true,
		}
		if req.Comment != nil {
			if c := strings.TrimSpace(*req.Comment); c != "" {
				rt.Comment = &c
			}
		}
		if err := tx.ClearLatest(ctx, rt.FromUserID, rt.ToUserID); err != nil {
			return err
		}
		if err := tx.InsertRating(ctx, rt); err != nil {
			return err
		}

		completed, err = g.applyLedger(ctx, tx, svc)
		if err != nil {
			return err
		}
		if err := tx.SaveService(ctx, svc); err != nil {
			return err
		}
		out = Submission{Rating: rt, Service: svc}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	svc, rt := out.Service, out.Rating
	log.WithFields(log.Fields{
		"service_id": svc.ID,
		"user_id":    rt.FromUserID,
		"role":       role,
		"state":      svc.GateState(),
	}).Info("rating submitted")

	g.emit(ctx, RatingSubmitted{
		EventID:    uuid.New(),
		RatingID:   rt.ID,
		ServiceID:  svc.ID,
		FromUserID: rt.FromUserID,
		ToUserID:   rt.ToUserID,
		FromRole:   role,
		Score:      rt.Score,
		At:         rt.CreatedAt,
	})
	g.emit(ctx, ObligationsChanged{EventID: uuid.New(), UserID: rt.FromUserID, ServiceID: svc.ID})
	if completed {
		g.emit(ctx, ServiceCompleted{EventID: uuid.New(), ServiceID: svc.ID, CompletedAt: *svc.CompletedAt})
		g.emit(ctx, ObligationsChanged{EventID: uuid.New(), UserID: rt.ToUserID, ServiceID: svc.ID})
	} else if !svc.RatedBy(counterRole(role)) {
		g.emit(ctx, RatingNeeded{
			EventID:         uuid.New(),
			ServiceID:       svc.ID,
			ServiceTitle:    svc.Title,
			UserID:          rt.ToUserID,
			CounterpartName: svc.Participant(role).Name,
		})
	}
	return &out, nil
}

// Service loads a service without locking it.
func (g *Gate) Service(ctx context.Context, serviceID int64) (*Service, error) {
	return g.repo.Service(ctx, serviceID)
}

// ListRatingsForService returns the ratings of a service, newest first.
func (g *Gate) ListRatingsForService(ctx context.Context, serviceID int64) ([]Rating, error) {
	if _, err := g.repo.Service(ctx, serviceID); err != nil {
		return nil, err
	}
	ratings, err := g.repo.RatingsForService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if ratings == nil {
		ratings = []Rating{}
	}
	return ratings, nil
}

func counterRole(r Role) Role {
	if r == RoleStore {
		return RoleAssembler
	}
	return RoleStore
}
