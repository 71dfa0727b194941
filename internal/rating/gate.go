package rating

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/amigo-montador/montador/internal/rating")

// GateState is the rating progress of a service.
type GateState string

const (
	AwaitingRatings GateState = "AWAITING_RATINGS"
	OneSideRated    GateState = "ONE_SIDE_RATED"
	BothRated       GateState = "BOTH_RATED"
)

func (s *Service) GateState() GateState {
	switch {
	case s.StoreRatingCompleted && s.AssemblerRatingCompleted:
		return BothRated
	case s.StoreRatingCompleted || s.AssemblerRatingCompleted:
		return OneSideRated
	}
	return AwaitingRatings
}

// OnRatingSubmitted marks role as rated and finishes the service once both
// sides are in. Flags only ever move to true, so applying it twice or in any
// order gives the same result. Returns true when this call completed the
// service.
func (s *Service) OnRatingSubmitted(role Role, now time.Time) bool {
	if s.Status == StatusCompleted && !s.RatingRequired {
		return false
	}
	switch role {
	case RoleStore:
		s.StoreRatingCompleted = true
	case RoleAssembler:
		s.AssemblerRatingCompleted = true
	}
	if s.StoreRatingCompleted && s.AssemblerRatingCompleted {
		s.RatingRequired = false
		s.Status = StatusCompleted
		if s.CompletedAt == nil {
			t := now.UTC()
			s.CompletedAt = &t
		}
		return true
	}
	s.Status = StatusAwaitingEvaluation
	s.RatingRequired = true
	return false
}

// Gate owns every write to ratings and to the completion flags.
type Gate struct {
	repo             Repository
	dispatch         Dispatchers
	minCommentLength int
	now              func() time.Time
}

type Option func(*Gate)

// WithMinCommentLength turns on the "mandatory with comment" rule.
func WithMinCommentLength(n int) Option {
	return func(g *Gate) { g.minCommentLength = n }
}

func WithDispatchers(ds ...Dispatcher) Option {
	return func(g *Gate) { g.dispatch = append(g.dispatch, ds...) }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func NewGate(repo Repository, opts ...Option) *Gate {
	g := &Gate{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ConfirmPayment is the external trigger that opens the rating requirement.
// Confirming twice is a no-op.
func (g *Gate) ConfirmPayment(ctx context.Context, serviceID int64) (*Service, error) {
	ctx, span := tracer.Start(ctx, "rating.ConfirmPayment", trace.WithAttributes(attribute.Int64("service.id", serviceID)))
	defer span.End()

	var (
		svc     *Service
		changed bool
	)
	err := g.repo.WithinTx(ctx, func(tx Tx) error {
		s, err := tx.LockService(ctx, serviceID)
		if err != nil {
			return err
		}
		svc = s
		if s.PaymentStatus == PaymentConfirmed {
			return nil
		}
		if s.Status != StatusInProgress || !s.HasAssembler() || !s.DistinctParticipants() {
			return ErrInvalidTransition
		}
		now := g.now().UTC()
		s.PaymentStatus = PaymentConfirmed
		s.PaymentConfirmedAt = &now
		s.Status = StatusAwaitingEvaluation
		s.RatingRequired = true
		changed = true
		return tx.SaveService(ctx, s)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if changed {
		log.WithField("service_id", serviceID).Info("payment confirmed, ratings required")
		for _, role := range []Role{RoleStore, RoleAssembler} {
			owner := svc.Participant(role)
			g.emit(ctx, RatingNeeded{
				EventID:         uuid.New(),
				ServiceID:       svc.ID,
				ServiceTitle:    svc.Title,
				UserID:          owner.ID,
				CounterpartName: svc.Counterpart(role).Name,
			})
			g.emit(ctx, ObligationsChanged{EventID: uuid.New(), UserID: owner.ID, ServiceID: svc.ID})
		}
	}
	return svc, nil
}

// CancelService moves a service to the terminal cancelled state, which drops
// any rating requirement.
func (g *Gate) CancelService(ctx context.Context, serviceID int64) (*Service, error) {
	ctx, span := tracer.Start(ctx, "rating.CancelService", trace.WithAttributes(attribute.Int64("service.id", serviceID)))
	defer span.End()

	var (
		svc     *Service
		changed bool
	)
	err := g.repo.WithinTx(ctx, func(tx Tx) error {
		s, err := tx.LockService(ctx, serviceID)
		if err != nil {
			return err
		}
		svc = s
		switch s.Status {
		case StatusCancelled:
			return nil
		case StatusCompleted:
			return ErrInvalidTransition
		}
		s.Status = StatusCancelled
		s.RatingRequired = false
		changed = true
		return tx.SaveService(ctx, s)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if changed && svc.PaymentStatus == PaymentConfirmed {
		for _, p := range []Participant{svc.Store, svc.Assembler} {
			if p.ID != 0 {
				g.emit(ctx, ObligationsChanged{EventID: uuid.New(), UserID: p.ID, ServiceID: svc.ID})
			}
		}
	}
	return svc, nil
}

// Reconcile recomputes the completion flags of a service from the ledger.
func (g *Gate) Reconcile(ctx context.Context, serviceID int64) (*Service, error) {
	ctx, span := tracer.Start(ctx, "rating.Reconcile", trace.WithAttributes(attribute.Int64("service.id", serviceID)))
	defer span.End()

	var (
		svc       *Service
		completed bool
	)
	err := g.repo.WithinTx(ctx, func(tx Tx) error {
		s, err := tx.LockService(ctx, serviceID)
		if err != nil {
			return err
		}
		svc = s
		if !s.ReadyForEvaluation() {
			return nil
		}
		completed, err = g.applyLedger(ctx, tx, s)
		if err != nil {
			return err
		}
		return tx.SaveService(ctx, s)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if completed {
		g.emit(ctx, ServiceCompleted{EventID: uuid.New(), ServiceID: svc.ID, CompletedAt: *svc.CompletedAt})
	}
	return svc, nil
}

// applyLedger replays the roles found in the ledger onto the service flags.
func (g *Gate) applyLedger(ctx context.Context, tx Tx, s *Service) (bool, error) {
	storeRated, assemblerRated, err := tx.RatedRoles(ctx, s.ID)
	if err != nil {
		return false, err
	}
	now := g.now()
	completed := false
	if storeRated && s.OnRatingSubmitted(RoleStore, now) {
		completed = true
	}
	if assemblerRated && s.OnRatingSubmitted(RoleAssembler, now) {
		completed = true
	}
	return completed, nil
}

func (g *Gate) emit(ctx context.Context, e Event) {
	if len(g.dispatch) == 0 {
		return
	}
	_ = g.dispatch.Dispatch(ctx, e)
}
