// Command amigoctl runs admin tasks against the rating gate: migrations,
// manual payment confirmation, cancellation, flag repair and inspection.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/amigo-montador/montador/internal/app"
	"github.com/amigo-montador/montador/internal/config"
	"github.com/amigo-montador/montador/internal/db"
	"github.com/amigo-montador/montador/internal/logging"
	mw "github.com/amigo-montador/montador/internal/middleware"
	"github.com/amigo-montador/montador/internal/rating"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.WithError(err).Fatal("amigoctl")
	}
}

func newApp() *cli.App {
	serviceFlag := &cli.Int64Flag{Name: "service", Aliases: []string{"s"}, Usage: "service id", Required: true}
	return &cli.App{
		Name:  "amigoctl",
		Usage: "admin tasks for the rating gate",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Usage: "number of steps, negative to roll back, 0 for all"},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					return db.Migrate(cfg.DSN(), c.Int("steps"))
				},
			},
			{
				Name:   "confirm-payment",
				Usage:  "confirm payment and open the rating requirement",
				Flags:  []cli.Flag{serviceFlag},
				Action: serviceAction((*rating.Gate).ConfirmPayment),
			},
			{
				Name:   "cancel-service",
				Usage:  "cancel a service that is not completed",
				Flags:  []cli.Flag{serviceFlag},
				Action: serviceAction((*rating.Gate).CancelService),
			},
			{
				Name:   "reconcile",
				Usage:  "recompute completion flags from the ratings",
				Flags:  []cli.Flag{serviceFlag},
				Action: serviceAction((*rating.Gate).Reconcile),
			},
			{
				Name:  "pending",
				Usage: "list the ratings a user still owes",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "user", Aliases: []string{"u"}, Required: true},
				},
				Action: func(c *cli.Context) error {
					a, err := open(c)
					if err != nil {
						return err
					}
					defer a.Close()
					pending, err := a.Gate.ResolvePendingObligations(c.Context, c.Int64("user"))
					if err != nil {
						return err
					}
					return printJSON(c, pending)
				},
			},
			{
				Name:  "token",
				Usage: "sign a JWT for local testing",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "user", Aliases: []string{"u"}, Required: true},
					&cli.StringFlag{Name: "role", Value: string(rating.RoleStore)},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					tok, err := mw.SignToken([]byte(cfg.JWTSecret), c.Int64("user"), c.String("role"), c.Duration("ttl"))
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, tok)
					return err
				},
			},
		},
	}
}

func loadConfig() (config.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	logging.Setup(cfg.Env, cfg.LogLevel)
	return cfg, nil
}

func open(c *cli.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(c.Context, cfg)
}

type serviceOp func(g *rating.Gate, ctx context.Context, serviceID int64) (*rating.Service, error)

func serviceAction(op serviceOp) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := open(c)
		if err != nil {
			return err
		}
		defer a.Close()
		svc, err := op(a.Gate, c.Context, c.Int64("service"))
		if err != nil {
			return err
		}
		return printJSON(c, svc)
	}
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
