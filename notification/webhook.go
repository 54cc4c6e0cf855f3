// SPDX-License-Identifier: GPL-3.0-or-later
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
)

const HttpTimeout = 10 * time.Second

// Webhook posts the message summary as JSON.
type Webhook struct {
	client *http.Client
	url    string
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: HttpTimeout},
		url:    url,
	}
}

func (w *Webhook) Name() string {
	return "webhook"
}

func (w *Webhook) Notify(ctx context.Context, message *domain.Message) error {
	body, err := json.Marshal(NewSummary(message))
	if err != nil {
		return fmt.Errorf("could not serialize summary: %w", err)
	}
	return postJson(ctx, w.client, w.url, body)
}

func postJson(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
