package llm

import (
	"context"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// Anthropic speaks the Messages API. System turns are lifted into the
// top-level system prompt.
type Anthropic struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func (a *Anthropic) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			turns = append(turns, m)
		default:
			turns = append(turns, Message{Role: RoleUser, Content: m.Content})
		}
	}

	body := map[string]any{
		"model":       a.model,
		"max_tokens":  2048,
		"messages":    turns,
		"temperature": temperature,
	}
	if len(system) > 0 {
		body["system"] = strings.Join(system, "\n\n")
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	err := postJSON(ctx, a.http, "anthropic", a.baseURL+"/messages", map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}, body, &resp)
	if err != nil {
		return "", err
	}
	for _, c := range resp.Content {
		if c.Type == "text" && c.Text != "" {
			return c.Text, nil
		}
	}
	return "", ErrEmptyResponse
}
