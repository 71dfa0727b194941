package alerts

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Worker runs the email queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redisAddr string, mailer Mailer) *Worker {
	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueEmails: 10,
		},
		Logger: log.StandardLogger(),
	})
	return &Worker{server: server, mux: NewMux(mailer)}
}

// NewMux routes email tasks to the mailer.
func NewMux(mailer Mailer) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskRatingNeeded, func(ctx context.Context, t *asynq.Task) error {
		var p RatingNeededPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return errors.Wrapf(asynq.SkipRetry, "decode %s: %v", t.Type(), err)
		}
		if err := mailer.Send(ctx, p.Envelope.To, p.Envelope.Subject, p.Envelope.Body); err != nil {
			log.WithError(err).WithField("service_id", p.ServiceID).Error("rating needed email failed")
			return err
		}
		log.WithFields(log.Fields{"service_id": p.ServiceID, "user_id": p.UserID}).Info("rating needed email sent")
		return nil
	})
	mux.HandleFunc(TaskRatingReceived, func(ctx context.Context, t *asynq.Task) error {
		var p RatingReceivedPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return errors.Wrapf(asynq.SkipRetry, "decode %s: %v", t.Type(), err)
		}
		if err := mailer.Send(ctx, p.Envelope.To, p.Envelope.Subject, p.Envelope.Body); err != nil {
			log.WithError(err).WithField("service_id", p.ServiceID).Error("rating received email failed")
			return err
		}
		log.WithFields(log.Fields{"service_id": p.ServiceID, "user_id": p.UserID}).Info("rating received email sent")
		return nil
	})
	return mux
}

// Run processes tasks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return errors.Wrap(err, "start asynq server")
	}
	log.Info("email worker started")
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
