package mq

import (
	"context"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// ErrDrop marks a delivery that can never succeed. It is rejected without
// requeue so it does not loop.
var ErrDrop = errors.New("drop message")

// HandlerFunc handles one delivery. A nil return acks it.
type HandlerFunc func(ctx context.Context, d amqp.Delivery) error

type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Bindings []string
	Prefetch int
	Name     string
}

type Consumer struct {
	cfg  ConsumerConfig
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	fail := func(err error, msg string) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, msg)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail(err, "declare exchange")
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail(err, "declare queue")
	}
	for _, key := range cfg.Bindings {
		if err := ch.QueueBind(q.Name, key, cfg.Exchange, false, nil); err != nil {
			return fail(err, "bind "+key)
		}
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fail(err, "set qos")
	}
	cfg.Queue = q.Name
	return &Consumer{cfg: cfg, conn: conn, ch: ch}, nil
}

// Run consumes until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, c.cfg.Name, false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consume")
	}
	return Serve(ctx, msgs, handle)
}

// Serve feeds deliveries to handle and settles each one.
func Serve(ctx context.Context, msgs <-chan amqp.Delivery, handle HandlerFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			settle(d, handle(ctx, d))
		}
	}
}

func settle(d amqp.Delivery, err error) {
	entry := log.WithField("routing_key", d.RoutingKey)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrDrop):
		entry.WithError(err).Warn("dropping message")
		_ = d.Nack(false, false)
	default:
		entry.WithError(err).Error("handle message failed, requeue")
		_ = d.Nack(false, true)
	}
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
