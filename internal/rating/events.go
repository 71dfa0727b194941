package rating

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	EventRatingSubmitted    = "rating.submitted"
	EventObligationsChanged = "rating.obligations_changed"
	EventRatingNeeded       = "rating.needed"
	EventServiceCompleted   = "service.completed"
)

type Event interface {
	Type() string
}

// Dispatcher receives events after the write that produced them committed.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

type RatingSubmitted struct {
	EventID    uuid.UUID `json:"event_id"`
	RatingID   int64     `json:"rating_id"`
	ServiceID  int64     `json:"service_id"`
	FromUserID int64     `json:"from_user_id"`
	ToUserID   int64     `json:"to_user_id"`
	FromRole   Role      `json:"from_role"`
	Score      int       `json:"rating"`
	At         time.Time `json:"at"`
}

func (RatingSubmitted) Type() string { return EventRatingSubmitted }

// ObligationsChanged tells a user's clients to resolve obligations again.
type ObligationsChanged struct {
	EventID   uuid.UUID `json:"event_id"`
	UserID    int64     `json:"user_id"`
	ServiceID int64     `json:"service_id"`
}

func (ObligationsChanged) Type() string { return EventObligationsChanged }

// RatingNeeded is the logical "rating needed for (service, user)" signal.
// Delivery and formatting belong to the consumers.
type RatingNeeded struct {
	EventID         uuid.UUID `json:"event_id"`
	ServiceID       int64     `json:"service_id"`
	ServiceTitle    string    `json:"service_title"`
	UserID          int64     `json:"user_id"`
	CounterpartName string    `json:"counterpart_name"`
}

func (RatingNeeded) Type() string { return EventRatingNeeded }

type ServiceCompleted struct {
	EventID     uuid.UUID `json:"event_id"`
	ServiceID   int64     `json:"service_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (ServiceCompleted) Type() string { return EventServiceCompleted }

// Dispatchers fans an event out to every dispatcher. A failing dispatcher
// does not stop the others.
type Dispatchers []Dispatcher

func (ds Dispatchers) Dispatch(ctx context.Context, event Event) error {
	var first error
	for _, d := range ds {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, event); err != nil {
			log.WithError(err).WithField("event", event.Type()).Warn("event dispatch failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
