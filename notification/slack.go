// SPDX-License-Identifier: GPL-3.0-or-later
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/CrawX/go-imap-triage/domain"
)

// Slack posts to an incoming webhook.
type Slack struct {
	client     *http.Client
	webhookUrl string
}

func NewSlack(webhookUrl string) *Slack {
	return &Slack{
		client:     &http.Client{Timeout: HttpTimeout},
		webhookUrl: webhookUrl,
	}
}

func (s *Slack) Name() string {
	return "slack"
}

func slackText(m *domain.Message) string {
	summary := NewSummary(m)
	return fmt.Sprintf("*%s* mail for %s\n*From:* %s\n*Subject:* %s\n>%s", summary.Category, summary.AccountID, summary.From, summary.Subject, summary.Excerpt)
}

func (s *Slack) Notify(ctx context.Context, message *domain.Message) error {
	body, err := json.Marshal(map[string]string{"text": slackText(message)})
	if err != nil {
		return fmt.Errorf("could not serialize slack message: %w", err)
	}
	return postJson(ctx, s.client, s.webhookUrl, body)
}
