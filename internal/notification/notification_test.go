package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/config"
)

type fakeNotifier struct {
	err   error
	calls int
}

func (f *fakeNotifier) Send(ctx context.Context, alert Alert) error {
	f.calls++
	return f.err
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `BTCUSDT above 70000\.5\!`, escapeMarkdown("BTCUSDT above 70000.5!"))
	assert.Equal(t, `a\_b \(c\)`, escapeMarkdown("a_b (c)"))
}

func TestTelegramSend(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertWarning, Title: "Price alert", Message: "BTC above 70000"}))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "MarkdownV2", got["parse_mode"])
	assert.Contains(t, got["text"], "Price alert")
}

func TestTelegramRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	err := n.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestWebhookSend(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m", Symbol: "ETHUSDT"}))
	assert.Equal(t, "ETHUSDT", got["symbol"])
	assert.Equal(t, "INFO", got["level"])
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down\n"))
	}))
	defer srv.Close()
	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{})
	require.Error(t, err)
	assert.Equal(t, "webhook: status 502: upstream down", err.Error())
}

func TestWhatsAppSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer KEY", r.Header.Get("Authorization"))
		assert.Equal(t, "KEY", r.Header.Get("X-API-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWhatsAppNotifier(srv.URL, "KEY", "+5215512345678")
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertWarning, Title: "Price alert", Message: "BTC above 70000"}))
	assert.Equal(t, "+5215512345678", got["to"])
	assert.Equal(t, "text", got["type"])
	assert.Equal(t, "[WARNING] *Price alert*\n\nBTC above 70000", got["message"])
}

func TestWhatsAppRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	}))
	defer srv.Close()

	err := NewWhatsAppNotifier(srv.URL, "bad", "1").Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whatsapp: status 401: invalid api key")
}

func TestEmailMessage(t *testing.T) {
	n := NewEmailNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587, User: "bot@example.com", Password: "pw"}, "a@example.com, b@example.com")

	var addr string
	var to []string
	var msg []byte
	n.send = func(a string, _ smtp.Auth, from string, rcpt []string, m []byte) error {
		addr, to, msg = a, rcpt, m
		assert.Equal(t, "bot@example.com", from)
		return nil
	}

	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertWarning, Title: "BTC alert", Message: "crossed"}))
	assert.Equal(t, "smtp.example.com:587", addr)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, to)
	assert.True(t, strings.Contains(string(msg), "Subject: [WARNING] BTC alert\r\n"))
	assert.True(t, strings.HasSuffix(string(msg), "crossed\r\n"))
}

func TestEmailNoRecipients(t *testing.T) {
	n := NewEmailNotifier(SMTPConfig{Host: "h", Port: 25}, " , ")
	assert.Error(t, n.Send(context.Background(), Alert{}))
}

func TestMultiResults(t *testing.T) {
	ok := &fakeNotifier{}
	bad := &fakeNotifier{err: errors.New("boom")}

	var seen []Result
	m := NewMulti().Add("ok", ok).Add("bad", bad)
	m.OnResult = func(r Result) { seen = append(seen, r) }

	results := m.SendAll(context.Background(), Alert{Title: "x"})
	require.Len(t, results, 2)
	assert.Equal(t, Result{Channel: "ok", Success: true}, results[0])
	assert.Equal(t, Result{Channel: "bad", Success: false, Error: "boom"}, results[1])
	assert.Len(t, seen, 2)

	// A partial failure is still reported.
	err := m.Send(context.Background(), Alert{})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"bad: boom"}, de.Failures)
	assert.Equal(t, []string{"ok"}, de.Delivered)
	assert.Contains(t, err.Error(), "1 of 2 channels failed")
}

func TestMultiLogChannelDoesNotMaskFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.baseURL = srv.URL
	m := NewMulti().Add("log", NewLogNotifier()).Add("telegram", tg)

	err := m.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Contains(t, err.Error(), "chat not found")

	assert.NoError(t, NewMulti().Add("log", NewLogNotifier()).Send(context.Background(), Alert{}))
}

func TestMultiAllFail(t *testing.T) {
	m := NewMulti().Add("a", &fakeNotifier{err: errors.New("x")}).Add("b", &fakeNotifier{err: errors.New("y")})
	err := m.Send(context.Background(), Alert{})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Len(t, de.Failures, 2)
}

func TestFromConfig(t *testing.T) {
	m := FromConfig(&config.Config{})
	assert.Equal(t, []string{"log"}, m.Channels())

	m = FromConfig(&config.Config{
		TelegramBotToken: "t",
		TelegramChatID:   "c",
		WebhookURL:       "http://hook",
		SMTPHost:         "smtp",
		SMTPPort:         25,
		AlertEmailTo:     "x@y",
		WhatsAppAPIURL:   "http://wa",
		WhatsAppAPIKey:   "k",
		WhatsAppNumber:   "1",
	})
	assert.Equal(t, []string{"log", "telegram", "webhook", "email", "whatsapp"}, m.Channels())
}
