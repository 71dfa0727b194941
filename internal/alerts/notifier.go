package alerts

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/amigo-montador/montador/internal/rating"
)

// ServiceLookup gives the notifier the title of a service.
type ServiceLookup interface {
	Service(ctx context.Context, serviceID int64) (*rating.Service, error)
}

// Notifier turns rating events into in-app notifications and emails. The
// enqueuer is optional; without Redis only in-app notifications are kept.
type Notifier struct {
	store     Store
	directory Directory
	services  ServiceLookup
	enqueuer  Enqueuer
	appURL    string
}

func NewNotifier(store Store, directory Directory, services ServiceLookup, enqueuer Enqueuer, appURL string) *Notifier {
	return &Notifier{store: store, directory: directory, services: services, enqueuer: enqueuer, appURL: appURL}
}

// Dispatch implements rating.Dispatcher.
func (n *Notifier) Dispatch(ctx context.Context, event rating.Event) error {
	switch e := event.(type) {
	case rating.RatingNeeded:
		return n.ratingNeeded(ctx, e)
	case rating.RatingSubmitted:
		return n.ratingReceived(ctx, e)
	}
	return nil
}

func (n *Notifier) ratingNeeded(ctx context.Context, e rating.RatingNeeded) error {
	ref := e.ServiceID
	err := n.store.Create(ctx, &Notification{
		UserID:    e.UserID,
		Type:      TypeRatingNeeded,
		Title:     "Avaliação obrigatória pendente",
		Body:      fmt.Sprintf("Avalie %s pelo serviço \"%s\".", e.CounterpartName, e.ServiceTitle),
		Reference: &ref,
	})
	if err != nil {
		return errors.Wrap(err, "create rating_needed notification")
	}

	to, ok := n.contact(ctx, e.UserID)
	if !ok {
		return nil
	}
	err = EnqueueRatingNeeded(ctx, n.enqueuer, n.appURL, e.ServiceID, e.UserID, to, e.ServiceTitle, e.CounterpartName)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return errors.Wrap(err, "enqueue rating_needed email")
}

func (n *Notifier) ratingReceived(ctx context.Context, e rating.RatingSubmitted) error {
	title := "serviço"
	if svc, err := n.services.Service(ctx, e.ServiceID); err == nil {
		title = svc.Title
	}
	ref := e.ServiceID
	err := n.store.Create(ctx, &Notification{
		UserID:    e.ToUserID,
		Type:      TypeRatingReceived,
		Title:     "Nova avaliação recebida",
		Body:      fmt.Sprintf("Você recebeu %d %s pelo serviço \"%s\".", e.Score, rating.EmojiFor(e.Score), title),
		Reference: &ref,
	})
	if err != nil {
		return errors.Wrap(err, "create rating_received notification")
	}

	to, ok := n.contact(ctx, e.ToUserID)
	if !ok {
		return nil
	}
	return errors.Wrap(EnqueueRatingReceived(ctx, n.enqueuer, e.ServiceID, e.ToUserID, to, title, e.Score), "enqueue rating_received email")
}

func (n *Notifier) contact(ctx context.Context, userID int64) (Contact, bool) {
	if n.enqueuer == nil || n.directory == nil {
		return Contact{}, false
	}
	to, err := n.directory.Contact(ctx, userID)
	if err != nil || to.Email == "" {
		log.WithError(err).WithField("user_id", userID).Debug("no email contact, skipping mail")
		return Contact{}, false
	}
	return to, true
}
