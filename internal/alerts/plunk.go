package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/amigo-montador/montador/internal/config"
)

// PlunkMailer sends mail through the Plunk HTTP API.
type PlunkMailer struct {
	cfg     config.Plunk
	replyTo string
	client  *http.Client
}

func NewPlunkMailer(cfg config.Plunk, replyTo string, client *http.Client) *PlunkMailer {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.useplunk.com/v1/send"
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PlunkMailer{cfg: cfg, replyTo: replyTo, client: client}
}

type plunkSendBody struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
	Reply   string `json:"reply,omitempty"`
}

func (m *PlunkMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.cfg.APIKey == "" {
		return errors.New("plunk not configured: set PLUNK_API_KEY")
	}
	b, _ := json.Marshal(plunkSendBody{
		To:      to,
		Subject: subject,
		Body:    body,
		From:    m.cfg.From,
		Reply:   m.replyTo,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "plunk request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "plunk send")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(msg) > 0 {
			return errors.Errorf("plunk send failed: status=%d body=%s", resp.StatusCode, msg)
		}
		return errors.Errorf("plunk send failed: status=%d", resp.StatusCode)
	}
	return nil
}
