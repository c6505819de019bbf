package notification

import (
	"context"
	"fmt"
	"sync"

	"cryptodash/config"
)

// Result is the delivery outcome for one channel.
type Result struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Multi fans an alert out to every configured channel concurrently.
type Multi struct {
	names     []string
	notifiers []Notifier
	// OnResult, if set, is called once per channel after delivery.
	OnResult func(Result)
}

// NewMulti creates an empty fan-out notifier.
func NewMulti() *Multi { return &Multi{} }

// Add registers a named channel.
func (m *Multi) Add(name string, n Notifier) *Multi {
	m.names = append(m.names, name)
	m.notifiers = append(m.notifiers, n)
	return m
}

// Channels returns the registered channel names in order.
func (m *Multi) Channels() []string { return append([]string(nil), m.names...) }

// Only returns a Multi holding just the named channel.
func (m *Multi) Only(name string) (*Multi, bool) {
	for i, n := range m.names {
		if n == name {
			return &Multi{names: []string{n}, notifiers: []Notifier{m.notifiers[i]}, OnResult: m.OnResult}, true
		}
	}
	return nil, false
}

// SendAll delivers to every channel and reports each outcome in
// registration order.
func (m *Multi) SendAll(ctx context.Context, alert Alert) []Result {
	results := make([]Result, len(m.notifiers))
	var wg sync.WaitGroup
	for i, n := range m.notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			r := Result{Channel: m.names[i], Success: true}
			if err := n.Send(ctx, alert); err != nil {
				r.Success = false
				r.Error = err.Error()
			}
			results[i] = r
		}(i, n)
	}
	wg.Wait()

	if m.OnResult != nil {
		for _, r := range results {
			m.OnResult(r)
		}
	}
	return results
}

// Send implements Notifier. Any failed channel is reported, even when
// others delivered.
func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var de DeliveryError
	for _, r := range m.SendAll(ctx, alert) {
		if r.Success {
			de.Delivered = append(de.Delivered, r.Channel)
			continue
		}
		de.Failures = append(de.Failures, r.Channel+": "+r.Error)
	}
	if len(de.Failures) == 0 {
		return nil
	}
	return &de
}

// DeliveryError lists the channels that failed and those that delivered.
type DeliveryError struct {
	Failures  []string
	Delivered []string
}

func (e *DeliveryError) Error() string {
	msg := "notification: all channels failed"
	if len(e.Delivered) > 0 {
		msg = fmt.Sprintf("notification: %d of %d channels failed", len(e.Failures), len(e.Failures)+len(e.Delivered))
	}
	for _, f := range e.Failures {
		msg += "; " + f
	}
	return msg
}

// FromConfig registers every channel that has settings, always including
// the log channel.
func FromConfig(cfg *config.Config) *Multi {
	m := NewMulti().Add("log", NewLogNotifier())
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		m.Add("telegram", NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		m.Add("webhook", NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.SMTPHost != "" && cfg.AlertEmailTo != "" {
		m.Add("email", NewEmailNotifier(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, cfg.AlertEmailTo))
	}
	if cfg.WhatsAppAPIURL != "" && cfg.WhatsAppAPIKey != "" && cfg.WhatsAppNumber != "" {
		m.Add("whatsapp", NewWhatsAppNotifier(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIKey, cfg.WhatsAppNumber))
	}
	return m
}
