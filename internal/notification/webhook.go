package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// jsonPoster POSTs JSON payloads to one endpoint. Non-2xx answers become
// errors carrying the start of the response body.
type jsonPoster struct {
	channel string
	url     string
	headers map[string]string
	client  *http.Client
}

func newJSONPoster(channel, url string, headers map[string]string) jsonPoster {
	return jsonPoster{
		channel: channel,
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p jsonPoster) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", p.channel, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", p.channel, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send: %w", p.channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if text := strings.TrimSpace(string(snippet)); text != "" {
			return fmt.Errorf("%s: status %d: %s", p.channel, resp.StatusCode, text)
		}
		return fmt.Errorf("%s: status %d", p.channel, resp.StatusCode)
	}
	return nil
}

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	poster jsonPoster
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{poster: newJSONPoster("webhook", url, nil)}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	err := w.poster.post(ctx, map[string]any{
		"level":   string(alert.Level),
		"title":   alert.Title,
		"message": alert.Message,
		"symbol":  alert.Symbol,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	log.Printf("[webhook] sent alert: %s", alert.Title)
	return nil
}
