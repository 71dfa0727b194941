package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var Conn *pgxpool.Pool

// Init connects to Postgres
func Init(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return errors.Wrap(err, "unable to connect to database")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return errors.Wrap(err, "unable to ping database")
	}

	Conn = pool
	log.Info("connected to postgres")
	return nil
}

// Close releases the pool.
func Close() {
	if Conn != nil {
		Conn.Close()
	}
}

// Ping reports whether the pool can still reach the database.
func Ping(ctx context.Context) error {
	if Conn == nil {
		return errors.New("database not initialised")
	}
	return Conn.Ping(ctx)
}
