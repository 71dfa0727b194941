// Package payments listens for payment confirmations from the billing side
// and opens the rating requirement on the matching service.
package payments

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/amigo-montador/montador/internal/mq"
	"github.com/amigo-montador/montador/internal/rating"
)

const RoutingKeyConfirmed = "payment.confirmed"

// Confirmed is the message billing publishes once a payment proof is accepted.
type Confirmed struct {
	ServiceID int64  `json:"service_id"`
	PaymentID string `json:"payment_id,omitempty"`
}

type Confirmer interface {
	ConfirmPayment(ctx context.Context, serviceID int64) (*rating.Service, error)
}

type Handler struct {
	gate Confirmer
}

func NewHandler(gate Confirmer) *Handler {
	return &Handler{gate: gate}
}

// Handle is an mq.HandlerFunc.
func (h *Handler) Handle(ctx context.Context, d amqp.Delivery) error {
	if d.RoutingKey != RoutingKeyConfirmed {
		log.WithField("routing_key", d.RoutingKey).Debug("skip unknown key")
		return nil
	}
	var msg Confirmed
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return errors.Wrapf(mq.ErrDrop, "decode payment.confirmed: %v", err)
	}
	if msg.ServiceID <= 0 {
		return errors.Wrap(mq.ErrDrop, "payment.confirmed without service_id")
	}

	svc, err := h.gate.ConfirmPayment(ctx, msg.ServiceID)
	switch {
	case errors.Is(err, rating.ErrNotFound), errors.Is(err, rating.ErrInvalidTransition):
		return errors.Wrapf(mq.ErrDrop, "service %d: %v", msg.ServiceID, err)
	case err != nil:
		return err
	}
	log.WithFields(log.Fields{
		"service_id": svc.ID,
		"payment_id": msg.PaymentID,
		"status":     svc.Status,
	}).Info("payment confirmation applied")
	return nil
}
