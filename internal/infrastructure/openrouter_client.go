package infrastructure

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

	"github.com/tidwall/gjson"

	"leadbridge/internal/config"
	"leadbridge/internal/entities"
)

const maxCompletionBody = 4 << 20

var ErrEmptyChoices = errors.New("completion returned no choices")

// OpenRouterClient calls an OpenAI-compatible chat completions endpoint.
type OpenRouterClient struct {
	apiKey     string
	model      string
	url        string
	referrer   string
	title      string
	httpClient *http.Client
}

func NewOpenRouterClient(cfg config.OpenRouterConfig, timeout time.Duration) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		url:        cfg.URL,
		referrer:   cfg.Referrer,
		title:      cfg.Title,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OpenRouterClient) Complete(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"model":    c.model,
		"messages": messages,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.referrer)
	req.Header.Set("X-Title", c.title)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCompletionBody))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("completion status %d: %s", resp.StatusCode, truncateBytes(body, 500))
	}

	return ParseCompletionContent(body)
}

// ParseCompletionContent extracts choices[0].message.content, which is either
// a string or a list of parts.
func ParseCompletionContent(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("completion response is not JSON: %s", truncateBytes(body, 200))
	}
	if !gjson.GetBytes(body, "choices.0").Exists() {
		return "", ErrEmptyChoices
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	switch {
	case content.Type == gjson.String:
		return strings.TrimSpace(content.Str), nil
	case content.IsArray():
		var sb strings.Builder
		for _, part := range content.Array() {
			if part.IsObject() {
				sb.WriteString(part.Get("text").String())
				continue
			}
			sb.WriteString(part.String())
		}
		return strings.TrimSpace(sb.String()), nil
	default:
		return "", fmt.Errorf("unexpected completion content type %s", content.Type)
	}
}

func truncateBytes(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
