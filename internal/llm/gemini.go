package llm

import (
	"context"
	"net/http"
	"net/url"
)

// Gemini speaks the generateContent API. Assistant turns map to the
// "model" role; system turns are sent as user turns.
type Gemini struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

func (g *Gemini) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	contents := make([]geminiContent, 0, len(messages))
	for _, m := range messages {
		role := RoleUser
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}

	body := map[string]any{
		"contents":         contents,
		"generationConfig": map[string]any{"temperature": temperature},
	}
	var resp struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	endpoint := g.baseURL + "/models/" + url.PathEscape(g.model) + ":generateContent?key=" + url.QueryEscape(g.apiKey)
	if err := postJSON(ctx, g.http, "gemini", endpoint, nil, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 || resp.Candidates[0].Content.Parts[0].Text == "" {
		return "", ErrEmptyResponse
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
