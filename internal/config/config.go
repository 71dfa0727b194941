package config

import (
	"fmt"
	"net/url"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type App struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	Env      string `envconfig:"ENV" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Storage  string `envconfig:"STORAGE" default:"postgres"`

	// DB
	DBUser      string `envconfig:"DB_USER" default:"postgres"`
	DBPassword  string `envconfig:"DB_PASSWORD"`
	DBHost      string `envconfig:"DB_HOST" default:"localhost"`
	DBPort      string `envconfig:"DB_PORT" default:"5432"`
	DBName      string `envconfig:"DB_NAME" default:"montador"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	// JWT
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// 0 keeps the comment optional.
	MinCommentLength int `envconfig:"RATING_MIN_COMMENT_LENGTH" default:"0"`

	RateLimit float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`

	// Optional integrations, disabled when empty.
	RedisAddr       string `envconfig:"REDIS_ADDR"`
	RabbitURL       string `envconfig:"RABBIT_URL"`
	RatingExchange  string `envconfig:"RATING_EXCHANGE" default:"rating.exchange"`
	PaymentExchange string `envconfig:"PAYMENT_EXCHANGE" default:"payment.exchange"`
	PaymentQueue    string `envconfig:"PAYMENT_QUEUE" default:"montador.payment.confirmed"`
	OTLPEndpoint    string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// smtp or plunk. Empty picks plunk when PLUNK_API_KEY is set, else smtp.
	MailProvider string `envconfig:"MAIL_PROVIDER"`
	MailReplyTo  string `envconfig:"MAIL_REPLY_TO"`
	SMTP         SMTP
	Plunk        Plunk
	// Base URL used in email links.
	AppURL string `envconfig:"APP_URL" default:"http://localhost:5173"`
}

// Plunk is read with the PLUNK_ prefix.
type Plunk struct {
	APIKey string `envconfig:"API_KEY"`
	From   string `envconfig:"FROM"`
	APIURL string `envconfig:"API_URL" default:"https://api.useplunk.com/v1/send"`
}

// SMTP is read with the SMTP_ prefix (SMTP_HOST, SMTP_PORT, ...).
type SMTP struct {
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT" default:"465"`
	Username string `envconfig:"USERNAME"`
	Password string `envconfig:"PASSWORD"`
	From     string `envconfig:"FROM"`
}

// Enabled is true when enough is set to send mail.
func (s SMTP) Enabled() bool {
	return s.Host != "" && s.Username != "" && s.Password != "" && s.From != ""
}

// Load reads .env when present and then the process environment.
func Load() (App, error) {
	_ = godotenv.Load()

	var c App
	if err := envconfig.Process("", &c); err != nil {
		return c, errors.Wrap(err, "load config")
	}
	if c.JWTSecret == "" {
		return c, errors.New("JWT_SECRET must not be empty")
	}
	if c.Storage != StorageMemory && c.Storage != StoragePostgres {
		return c, errors.Errorf("unknown STORAGE %q", c.Storage)
	}
	if c.MinCommentLength < 0 {
		return c, errors.New("RATING_MIN_COMMENT_LENGTH must not be negative")
	}
	return c, nil
}

func (c App) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%s", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}
	if c.Env == "dev" {
		u.RawQuery = "sslmode=disable"
	}
	return u.String()
}
