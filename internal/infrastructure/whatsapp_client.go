package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadbridge/internal/interfaces"
)

// WhatsAppBusinessClient sends text through the WhatsApp Cloud API.
type WhatsAppBusinessClient struct {
	apiBase       string
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
}

func NewWhatsAppBusinessClient(apiBase, accessToken, phoneNumberID string, timeout time.Duration) *WhatsAppBusinessClient {
	return &WhatsAppBusinessClient{
		apiBase:       strings.TrimRight(apiBase, "/"),
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

func (w *WhatsAppBusinessClient) SendText(ctx context.Context, to, content string, _ interfaces.SendOptions) error {
	url := fmt.Sprintf("%s/%s/messages", w.apiBase, w.phoneNumberID)
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text": map[string]interface{}{
			"preview_url": false,
			"body":        content,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("whatsapp send to %s: status %d: %s", to, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
