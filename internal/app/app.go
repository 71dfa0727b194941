// Package app wires storage, the rating gate and its event consumers from
// config. The HTTP server and the admin CLI share it.
package app

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/amigo-montador/montador/internal/alerts"
	"github.com/amigo-montador/montador/internal/config"
	"github.com/amigo-montador/montador/internal/db"
	"github.com/amigo-montador/montador/internal/mq"
	"github.com/amigo-montador/montador/internal/rating"
	"github.com/amigo-montador/montador/internal/realtime"
)

type App struct {
	Config        config.App
	Repo          rating.Repository
	Gate          *rating.Gate
	Hub           *realtime.Hub
	Notifications alerts.Store

	closers []func()
}

// New connects to the configured storage and optional brokers. Optional
// integrations that fail to connect are logged and skipped.
func New(ctx context.Context, cfg config.App) (*App, error) {
	a := &App{Config: cfg}

	var directory alerts.Directory
	switch cfg.Storage {
	case config.StoragePostgres:
		if err := db.Init(ctx, cfg.DSN()); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if cfg.AutoMigrate {
			if err := db.Migrate(cfg.DSN(), 0); err != nil {
				a.Close()
				return nil, errors.Wrap(err, "migrate")
			}
		}
		a.Repo = db.NewRatingRepo(db.Conn)
		store := alerts.NewPGStore(db.Conn)
		a.Notifications, directory = store, store
	default:
		repo := rating.NewMemoryRepo()
		store := alerts.NewMemoryStore()
		seedDemo(repo, store)
		a.Repo = repo
		a.Notifications, directory = store, store
	}

	opts := []rating.Option{rating.WithMinCommentLength(cfg.MinCommentLength)}

	// The hub only reads obligations, so it gets a gate without dispatchers.
	a.Hub = realtime.NewHub(rating.NewGate(a.Repo, opts...))

	var enqueuer alerts.Enqueuer
	if cfg.RedisAddr != "" {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = client.Close() })
		enqueuer = client
	} else {
		log.Info("REDIS_ADDR empty, rating emails disabled")
	}
	notifier := alerts.NewNotifier(a.Notifications, directory, a.Repo, enqueuer, cfg.AppURL)

	dispatchers := []rating.Dispatcher{a.Hub, notifier}
	if cfg.RabbitURL != "" {
		pub, err := mq.NewPublisher(cfg.RabbitURL, cfg.RatingExchange)
		if err != nil {
			log.WithError(err).Warn("rabbitmq publisher unavailable, rating events stay local")
		} else {
			a.closers = append(a.closers, func() { _ = pub.Close() })
			dispatchers = append(dispatchers, pub)
		}
	}
	opts = append(opts, rating.WithDispatchers(dispatchers...))
	a.Gate = rating.NewGate(a.Repo, opts...)

	log.WithFields(log.Fields{
		"storage":     cfg.Storage,
		"dispatchers": len(dispatchers),
		"min_comment": cfg.MinCommentLength,
	}).Info("rating gate ready")
	return a, nil
}

// Ready reports whether storage is reachable.
func (a *App) Ready(ctx context.Context) error {
	if a.Config.Storage == config.StoragePostgres {
		return db.Ping(ctx)
	}
	return nil
}

// Close releases connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
