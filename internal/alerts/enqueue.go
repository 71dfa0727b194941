package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func ratingLink(appURL string, serviceID int64) string {
	base := strings.TrimRight(appURL, "/")
	if base == "" {
		base = "http://localhost:5173"
	}
	return fmt.Sprintf("%s/services/%d/rate", base, serviceID)
}

// EnqueueRatingNeeded schedules the "please rate" email
func EnqueueRatingNeeded(ctx context.Context, enq Enqueuer, appURL string, serviceID, userID int64, to Contact, serviceTitle, counterpart string) error {
	subject := fmt.Sprintf("Avaliação obrigatória: %s", serviceTitle)
	body := fmt.Sprintf("Olá %s,\n\nO pagamento do serviço \"%s\" foi confirmado. Avalie %s para concluir o serviço:\n%s\n\nO serviço só é finalizado depois que as duas partes avaliarem.\n\nEquipe Amigo Montador",
		to.Name, serviceTitle, counterpart, ratingLink(appURL, serviceID))

	payload := RatingNeededPayload{
		ServiceID: serviceID,
		UserID:    userID,
		Email:     to.Email,
		Envelope:  EmailEnvelope{To: to.Email, Subject: subject, Body: body},
		SentAt:    time.Now(),
	}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskRatingNeeded, b)
	_, err := enq.EnqueueContext(ctx, task,
		asynq.Queue(QueueEmails),
		asynq.MaxRetry(5),
		asynq.TaskID(fmt.Sprintf("rating-needed:%d:%d", serviceID, userID)),
	)
	return err
}

// EnqueueRatingReceived tells a participant they were rated
func EnqueueRatingReceived(ctx context.Context, enq Enqueuer, serviceID, userID int64, to Contact, serviceTitle string, score int) error {
	subject := "Você recebeu uma nova avaliação"
	body := fmt.Sprintf("Olá %s,\n\nVocê recebeu uma avaliação de %d estrela(s) pelo serviço \"%s\".\n\nEquipe Amigo Montador",
		to.Name, score, serviceTitle)

	payload := RatingReceivedPayload{
		ServiceID: serviceID,
		UserID:    userID,
		Email:     to.Email,
		Rating:    score,
		Envelope:  EmailEnvelope{To: to.Email, Subject: subject, Body: body},
		SentAt:    time.Now(),
	}
	b, _ := json.Marshal(payload)
	task := asynq.NewTask(TaskRatingReceived, b)
	_, err := enq.EnqueueContext(ctx, task, asynq.Queue(QueueEmails))
	return err
}
