// Package llm produces market commentary from chat-completion providers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Roles used in Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrUnknownProvider = errors.New("llm: unknown provider")
	ErrEmptyResponse   = errors.New("llm: empty response")
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer turns a conversation into the next assistant reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string // openai, anthropic, gemini, deepseek
	APIKey   string
	Model    string // provider default when empty
	BaseURL  string // provider default when empty
	Timeout  time.Duration
}

// New builds the Completer for cfg.Provider.
func New(cfg Config) (Completer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	hc := &http.Client{Timeout: cfg.Timeout}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newChatCompletions("openai", orDefault(cfg.BaseURL, "https://api.openai.com/v1"),
			cfg.APIKey, orDefault(cfg.Model, "gpt-3.5-turbo"), hc), nil
	case "deepseek":
		return newChatCompletions("deepseek", orDefault(cfg.BaseURL, "https://api.deepseek.com/v1"),
			cfg.APIKey, orDefault(cfg.Model, "deepseek-chat"), hc), nil
	case "anthropic":
		return &Anthropic{
			baseURL: strings.TrimRight(orDefault(cfg.BaseURL, "https://api.anthropic.com/v1"), "/"),
			apiKey:  cfg.APIKey,
			model:   orDefault(cfg.Model, "claude-3-haiku-20240307"),
			http:    hc,
		}, nil
	case "gemini":
		return &Gemini{
			baseURL: strings.TrimRight(orDefault(cfg.BaseURL, "https://generativelanguage.googleapis.com/v1beta"), "/"),
			apiKey:  cfg.APIKey,
			model:   orDefault(cfg.Model, "gemini-pro"),
			http:    hc,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// postJSON sends body and decodes a 2xx response into out.
func postJSON(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", provider, err)
	}
	return nil
}
