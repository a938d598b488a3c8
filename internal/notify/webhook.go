package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultWebhookTimeout = 5 * time.Second

// Webhook posts notifications as JSON to an HTTP endpoint.
type Webhook struct {
	URL     string
	Secret  string
	Timeout time.Duration
	Client  *http.Client
	Now     func() time.Time
}

type webhookMessage struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	SentAt  string `json:"sent_at"`
}

func (w Webhook) client() *http.Client {
	if w.Client != nil {
		return w.Client
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (w Webhook) Notify(ctx context.Context, actorID, subject, body string) error {
	if strings.TrimSpace(w.URL) == "" {
		return nil
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	msg := webhookMessage{
		ID:      uuid.NewString(),
		ActorID: actorID,
		Subject: subject,
		Body:    body,
		SentAt:  now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Guildline-Delivery", msg.ID)
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Guildline-Secret", w.Secret)
	}
	res, err := w.client().Do(req)
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("notify webhook: status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}
