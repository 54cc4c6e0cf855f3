// SPDX-License-Identifier: GPL-3.0-or-later
package notification

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"github.com/CrawX/go-imap-triage/domain"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const SendGridHost = "https://api.sendgrid.com"

// SendGrid sends an alert mail per message.
type SendGrid struct {
	client *sendgrid.Client
	from   *mail.Email
	to     *mail.Email
}

// NewSendGrid talks to the SendGrid API at host, an empty host means the public API.
func NewSendGrid(apiKey, from, to, host string) (*SendGrid, error) {
	if len(apiKey) == 0 {
		return nil, fmt.Errorf("SendGrid API key not configured")
	}
	if len(from) == 0 || len(to) == 0 {
		return nil, fmt.Errorf("SendGrid needs a from and a to address")
	}
	if len(host) == 0 {
		host = SendGridHost
	}

	request := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	request.Method = http.MethodPost

	return &SendGrid{
		client: &sendgrid.Client{Request: request},
		from:   mail.NewEmail("go-imap-triage", from),
		to:     mail.NewEmail("", to),
	}, nil
}

func (s *SendGrid) Name() string {
	return "sendgrid"
}

func (s *SendGrid) Notify(ctx context.Context, message *domain.Message) error {
	summary := NewSummary(message)
	subject := fmt.Sprintf("[%s] %s", summary.Category, summary.Subject)
	body := fmt.Sprintf("Account: %s\nFrom: %s\nDate: %s\nSubject: %s\n\n%s", summary.AccountID, summary.From, summary.Date, summary.Subject, summary.Excerpt)

	response, err := s.client.SendWithContext(ctx, mail.NewSingleEmail(s.from, subject, s.to, body, "<pre>"+html.EscapeString(body)+"</pre>"))
	if err != nil {
		return fmt.Errorf("could not send mail: %w", err)
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
