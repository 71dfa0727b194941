package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE", "memory")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, StorageMemory, c.Storage)
	assert.Equal(t, 0, c.MinCommentLength)
	assert.Equal(t, "rating.exchange", c.RatingExchange)
	assert.False(t, c.SMTP.Enabled())
	assert.Empty(t, c.MailProvider)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET must not be empty")
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE", "sqlite")
	_, err := Load()
	assert.ErrorContains(t, err, "sqlite")
}

func TestLoadCommentPolicy(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE", "memory")
	t.Setenv("RATING_MIN_COMMENT_LENGTH", "10")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, c.MinCommentLength)

	t.Setenv("RATING_MIN_COMMENT_LENGTH", "-1")
	_, err = Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := App{DBUser: "app", DBPassword: "p@ss", DBHost: "db", DBPort: "5432", DBName: "montador", Env: "dev"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/montador?sslmode=disable", c.DSN())

	c.Env = "production"
	assert.Equal(t, "postgres://app:p%40ss@db:5432/montador", c.DSN())
}

func TestLoadSMTP(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE", "memory")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USERNAME", "mailer")
	t.Setenv("SMTP_PASSWORD", "pw")
	t.Setenv("SMTP_FROM", "no-reply@example.com")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", c.SMTP.Host)
	assert.Equal(t, "465", c.SMTP.Port)
	assert.True(t, c.SMTP.Enabled())
}
