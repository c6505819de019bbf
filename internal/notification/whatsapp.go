package notification

import (
	"context"
	"log"
)

// WhatsAppNotifier sends alerts through an HTTP WhatsApp gateway that
// accepts {"to", "message", "type":"text"}. The key goes out both as a
// bearer token and as X-API-Key.
type WhatsAppNotifier struct {
	poster jsonPoster
	number string
}

// NewWhatsAppNotifier creates a notifier posting to apiURL for number.
func NewWhatsAppNotifier(apiURL, apiKey, number string) *WhatsAppNotifier {
	return &WhatsAppNotifier{
		poster: newJSONPoster("whatsapp", apiURL, map[string]string{
			"Authorization": "Bearer " + apiKey,
			"X-API-Key":     apiKey,
		}),
		number: number,
	}
}

func (n *WhatsAppNotifier) Send(ctx context.Context, alert Alert) error {
	err := n.poster.post(ctx, map[string]string{
		"to":      n.number,
		"message": whatsAppText(alert),
		"type":    "text",
	})
	if err != nil {
		return err
	}
	log.Printf("[whatsapp] sent alert: %s", alert.Title)
	return nil
}

// whatsAppText renders alert with WhatsApp's *bold* markup.
func whatsAppText(alert Alert) string {
	text := "*" + alert.Title + "*"
	if alert.Level != "" {
		text = "[" + string(alert.Level) + "] " + text
	}
	if alert.Message != "" {
		text += "\n\n" + alert.Message
	}
	return text
}
