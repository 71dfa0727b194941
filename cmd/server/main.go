package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/amigo-montador/montador/internal/admin"
	"github.com/amigo-montador/montador/internal/alerts"
	"github.com/amigo-montador/montador/internal/app"
	"github.com/amigo-montador/montador/internal/config"
	"github.com/amigo-montador/montador/internal/logging"
	"github.com/amigo-montador/montador/internal/marketplace"
	mw "github.com/amigo-montador/montador/internal/middleware"
	"github.com/amigo-montador/montador/internal/mq"
	"github.com/amigo-montador/montador/internal/obs"
	"github.com/amigo-montador/montador/internal/payments"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	logging.Setup(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, "montador", cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		log.WithError(err).Warn("tracing disabled")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("init")
	}
	defer a.Close()

	e := newServer(a)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})

	if cfg.RabbitURL != "" {
		g.Go(func() error { return runPaymentConsumer(gctx, cfg, a) })
	}
	if cfg.RedisAddr != "" {
		worker := alerts.NewWorker(cfg.RedisAddr, alerts.NewMailer(cfg))
		g.Go(func() error { return worker.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server stopped")
		return
	}
	log.Info("server stopped")
}

func newServer(a *app.App) *echo.Echo {
	cfg := a.Config
	e := echo.New()
	e.HideBanner = true
	e.Validator = mw.NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := a.Ready(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	secret := []byte(cfg.JWTSecret)
	api, adminGroup := marketplace.Routes(e, marketplace.NewHandler(a.Gate), secret)
	alerts.NewHandler(a.Notifications).Routes(api)
	admin.NewHandler(a.Gate).Routes(adminGroup)
	e.GET("/ws", a.Hub.Handler, mw.JWT(secret))
	return e
}

// requestLogger writes one logrus entry per request. Only the path is
// logged: websocket clients pass their token in the query string.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(log.Fields{
				"method":     v.Method,
				"path":       v.URIPath,
				"route":      c.Path(),
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}

func runPaymentConsumer(ctx context.Context, cfg config.App, a *app.App) error {
	var (
		cons *mq.Consumer
		err  error
	)
	for {
		cons, err = mq.NewConsumer(mq.ConsumerConfig{
			URL:      cfg.RabbitURL,
			Exchange: cfg.PaymentExchange,
			Queue:    cfg.PaymentQueue,
			Bindings: []string{payments.RoutingKeyConfirmed},
			Prefetch: 16,
			Name:     "montador",
		})
		if err == nil {
			break
		}
		log.WithError(err).Warn("payment consumer connect failed, retry in 2s")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
	defer cons.Close()

	log.WithFields(log.Fields{"exchange": cfg.PaymentExchange, "queue": cfg.PaymentQueue}).Info("payment consumer started")
	return cons.Run(ctx, payments.NewHandler(a.Gate).Handle)
}
