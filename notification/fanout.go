// SPDX-License-Identifier: GPL-3.0-or-later
package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/mail"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Sink is a notification target.
type Sink interface {
	domain.Notifier
	Name() string
}

type namedSink struct {
	domain.Notifier
	name string
}

func (n *namedSink) Name() string {
	return n.name
}

// Named turns any notifier into a sink.
func Named(name string, notifier domain.Notifier) Sink {
	return &namedSink{Notifier: notifier, name: name}
}

// Fanout delivers a message to every sink concurrently. A failing sink neither
// stops nor delays the others and is never retried.
type Fanout struct {
	sinks []Sink
	l     *logrus.Logger
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{
		sinks: sinks,
		l:     log.Logger(log.LOG_NOTIFICATION),
	}
}

func (f *Fanout) Sinks() int {
	return len(f.sinks)
}

func (f *Fanout) Notify(ctx context.Context, message *domain.Message) error {
	errs := make([]error, len(f.sinks))
	g := errgroup.Group{}
	for i, sink := range f.sinks {
		i, sink := i, sink
		g.Go(func() error {
			err := sink.Notify(ctx, message)
			if err != nil {
				errs[i] = fmt.Errorf("could not notify %s: %w", sink.Name(), err)
				f.l.WithFields(logrus.Fields{"sink": sink.Name(), "id": message.ID, "error": err}).Warn("Notification failed")
				return nil
			}
			f.l.WithFields(logrus.Fields{"sink": sink.Name(), "subject": mail.ShortSubject(message.Subject)}).Debug("Notified")
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Summary is the sink independent view of a notified message.
type Summary struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"accountId"`
	From       string          `json:"from"`
	Subject    string          `json:"subject"`
	Category   domain.Category `json:"category"`
	Date       string          `json:"date"`
	Excerpt    string          `json:"excerpt"`
	IngestedAt string          `json:"ingestedAt"`
}

const ExcerptLength = 200

func NewSummary(m *domain.Message) *Summary {
	return &Summary{
		ID:         m.ID,
		AccountID:  m.AccountID,
		From:       m.From,
		Subject:    m.Subject,
		Category:   m.Category,
		Date:       m.Date.UTC().Format("2006-01-02T15:04:05Z"),
		Excerpt:    mail.Excerpt(m.Text, ExcerptLength),
		IngestedAt: m.IngestedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
