package alerts

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/amigo-montador/montador/internal/config"
)

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewMailer picks the provider from config. Without credentials mail is
// only logged.
func NewMailer(cfg config.App) Mailer {
	switch {
	case cfg.MailProvider == "plunk" || (cfg.Plunk.APIKey != "" && cfg.MailProvider == ""):
		return NewPlunkMailer(cfg.Plunk, cfg.MailReplyTo, nil)
	case cfg.SMTP.Enabled():
		return &SMTPMailer{cfg: cfg.SMTP, replyTo: cfg.MailReplyTo}
	}
	log.Warn("mail not configured, emails will only be logged")
	return LogMailer{}
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, _ string) error {
	log.WithFields(log.Fields{"to": to, "subject": subject}).Info("email (not sent, mail disabled)")
	return nil
}

// SMTPMailer sends plain text or html mail over implicit TLS.
type SMTPMailer struct {
	cfg     config.SMTP
	replyTo string
}

func buildMessage(from, to, replyTo, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if replyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", replyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	contentType := "text/plain"
	lb := strings.ToLower(body)
	if strings.Contains(lb, "<html") || strings.Contains(lb, "<body") || strings.Contains(lb, "<!doctype html") {
		contentType = "text/html"
	}
	fmt.Fprintf(&b, "Content-Type: %s; charset=\"utf-8\"\r\n", contentType)
	b.WriteString("\r\n" + body + "\r\n")
	return b.String()
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	addr := m.cfg.Host + ":" + m.cfg.Port
	msg := buildMessage(m.cfg.From, to, m.replyTo, subject, body)

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.cfg.Host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap(err, "smtp dial")
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return errors.Wrap(err, "smtp client")
	}
	defer c.Close()

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return errors.Wrap(err, "smtp auth")
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return errors.Wrap(err, "smtp mail from")
	}
	if err := c.Rcpt(to); err != nil {
		return errors.Wrap(err, "smtp rcpt to")
	}
	wc, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "smtp data")
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		return errors.Wrap(err, "smtp write")
	}
	if err := wc.Close(); err != nil {
		return errors.Wrap(err, "smtp close")
	}
	return c.Quit()
}
