// Package email delivers one-time codes to participants.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// Subject is the subject line of code emails.
const Subject = "Your Camp Dashboard sign-in code"

// Sender hands a code to the mail system. Implementations must not log the code.
type Sender interface {
	Send(ctx context.Context, to, code string) error
}

// HTTPSender sends codes through a transactional mail HTTP API that accepts
// {"from","to","subject","text"} JSON with a bearer key.
type HTTPSender struct {
	APIKey     string
	BaseURL    string
	From       string
	HTTPClient *http.Client
}

// NewHTTPSender returns a sender for the API at baseURL.
func NewHTTPSender(apiKey, baseURL, from string) *HTTPSender {
	return &HTTPSender{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		From:       from,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Send posts one code email.
func (c *HTTPSender) Send(ctx context.Context, to, code string) error {
	if c.APIKey == "" {
		return fmt.Errorf("email: API key not configured")
	}
	raw, err := json.Marshal(message{
		From:    c.From,
		To:      to,
		Subject: Subject,
		Text:    fmt.Sprintf("Your sign-in code is %s. Do not share it with anyone.", code),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// LogSender is used when no delivery is configured. It records that a code was issued.
type LogSender struct {
	Log *slog.Logger
}

// Send logs the recipient only.
func (s LogSender) Send(ctx context.Context, to, code string) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.WarnContext(ctx, "email delivery not configured; code not sent", slog.String("to", to))
	return nil
}
