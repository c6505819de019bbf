package llm

import (
	"context"
	"net/http"
	"strings"
)

// ChatCompletions speaks the OpenAI chat completions API, which DeepSeek
// also implements.
type ChatCompletions struct {
	provider string
	baseURL  string
	apiKey   string
	model    string
	http     *http.Client
}

func newChatCompletions(provider, baseURL, apiKey, model string, hc *http.Client) *ChatCompletions {
	return &ChatCompletions{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		model:    model,
		http:     hc,
	}
}

func (c *ChatCompletions) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": temperature,
	}
	var resp struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	err := postJSON(ctx, c.http, c.provider, c.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.apiKey}, body, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
