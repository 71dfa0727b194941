package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amigo-montador/montador/internal/rating"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	out []published
	err error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestPublisherDispatch(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, exchange: "rating.exchange"}

	err := p.Dispatch(context.Background(), rating.RatingSubmitted{ServiceID: 42, FromUserID: 1, ToUserID: 2, Score: 4})
	require.NoError(t, err)
	require.Len(t, ch.out, 1)
	got := ch.out[0]
	assert.Equal(t, "rating.exchange", got.exchange)
	assert.Equal(t, rating.EventRatingSubmitted, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.NotEmpty(t, got.msg.MessageId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.EqualValues(t, 42, body["service_id"])
	assert.EqualValues(t, 4, body["rating"])

	ch.err = errors.New("channel closed")
	err = p.Dispatch(context.Background(), rating.ServiceCompleted{ServiceID: 42})
	assert.ErrorContains(t, err, "publish service.completed")
}

type ackRecorder struct {
	acks, nacks, requeues int
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acks++; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	if requeue {
		a.requeues++
	}
	return nil
}
func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func TestServeSettlesDeliveries(t *testing.T) {
	rec := &ackRecorder{}
	msgs := make(chan amqp.Delivery, 3)
	for _, body := range []string{"ok", "drop", "retry"} {
		msgs <- amqp.Delivery{Acknowledger: rec, Body: []byte(body)}
	}
	close(msgs)

	err := Serve(context.Background(), msgs, func(_ context.Context, d amqp.Delivery) error {
		switch string(d.Body) {
		case "drop":
			return errors.Join(ErrDrop, errors.New("bad payload"))
		case "retry":
			return errors.New("db down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.acks)
	assert.Equal(t, 2, rec.nacks)
	assert.Equal(t, 1, rec.requeues)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, make(chan amqp.Delivery), func(context.Context, amqp.Delivery) error { return nil })
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}
