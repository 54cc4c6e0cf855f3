// SPDX-License-Identifier: GPL-3.0-or-later
package pipeline

//go:generate mockgen -destination=mocks_test.go -package=pipeline . Categorizer
import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/mail"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultNotifyConcurrency = 8

// Categorizer never fails, unusable results come back as Unclassified.
type Categorizer interface {
	Classify(ctx context.Context, msg *domain.Message) domain.ClassificationResult
	ClassifyBatch(ctx context.Context, msgs []*domain.Message) map[string]domain.ClassificationResult
}

type Stats struct {
	Processed       int64
	Persisted       int64
	PersistFailures int64
	Notified        int64
	NotifyFailures  int64
}

type counters struct {
	processed       atomic.Int64
	persisted       atomic.Int64
	persistFailures atomic.Int64
	notified        atomic.Int64
	notifyFailures  atomic.Int64
}

// Pipeline categorizes, stores and announces messages.
type Pipeline struct {
	categorizer Categorizer
	persistence domain.Persistence
	notifier    domain.Notifier

	configuration *configuration
	counters      counters

	l *logrus.Logger
}

// NewPipeline creates a pipeline, a nil notifier disables notifications.
func NewPipeline(categorizer Categorizer, persistence domain.Persistence, notifier domain.Notifier, configFunc ...ConfigFunc) (*Pipeline, error) {
	config := &configuration{
		NotifyCategory:    domain.Interested,
		NotifyConcurrency: DefaultNotifyConcurrency,
	}
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Pipeline{
		categorizer:   categorizer,
		persistence:   persistence,
		notifier:      notifier,
		configuration: config,
		l:             log.Logger(log.LOG_PIPELINE),
	}, nil
}

// ProcessBackfill classifies the messages in chunks, stores them in one go and notifies
// for every stored message of the notify category. The category is set on every message.
func (p *Pipeline) ProcessBackfill(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	start := time.Now()
	results := p.categorizer.ClassifyBatch(ctx, msgs)
	for _, m := range msgs {
		result, ok := results[m.ID]
		if !ok {
			result = domain.UnclassifiedResult("no classification result")
		}
		merge(m, result)
	}
	p.counters.processed.Add(int64(len(msgs)))
	p.l.WithFields(logrus.Fields{"mails": len(msgs), "duration": time.Since(start)}).Debug("Classified backfill")

	err := p.persistence.BulkCreateOrReplace(ctx, msgs)
	if err != nil {
		p.counters.persistFailures.Add(int64(len(msgs)))
		err = asPersistenceError("save messages", err)
		p.l.WithFields(logrus.Fields{"mails": len(msgs), "error": err}).Error("Could not persist backfill, skipping notifications")
		return err
	}
	p.counters.persisted.Add(int64(len(msgs)))

	toNotify := []*domain.Message{}
	for _, m := range msgs {
		if p.shouldNotify(m) {
			toNotify = append(toNotify, m)
		}
	}
	p.notifyAll(ctx, toNotify)

	p.l.WithFields(logrus.Fields{"mails": len(msgs), "notified": len(toNotify), "duration": time.Since(start)}).Info("Processed backfill")
	return nil
}

// ProcessIncoming handles a single new message. Notification failures are logged only.
func (p *Pipeline) ProcessIncoming(ctx context.Context, msg *domain.Message) error {
	mailLogger := p.l.WithFields(logrus.Fields{"id": msg.ID, "account": msg.AccountID, "subject": mail.ShortSubject(msg.Subject)})

	merge(msg, p.categorizer.Classify(ctx, msg))
	p.counters.processed.Add(1)

	err := p.persistence.CreateOrReplace(ctx, msg)
	if err != nil {
		p.counters.persistFailures.Add(1)
		err = asPersistenceError("save message", err)
		mailLogger.WithField("error", err).Error("Could not persist mail")
		return err
	}
	p.counters.persisted.Add(1)
	mailLogger.WithField("category", msg.Category).Info("Processed mail")

	if p.shouldNotify(msg) {
		p.notify(ctx, msg)
	}
	return nil
}

// Recategorize classifies a stored message again and updates only its category.
func (p *Pipeline) Recategorize(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := p.persistence.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, asPersistenceError("load message", err)
	}

	result := p.categorizer.Classify(ctx, msg)
	err = p.persistence.UpdateCategory(ctx, id, result.Category)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, asPersistenceError("update category", err)
	}

	p.l.WithFields(logrus.Fields{"id": id, "from": msg.Category, "to": result.Category}).Info("Recategorized mail")
	msg.Category = result.Category
	return msg, nil
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:       p.counters.processed.Load(),
		Persisted:       p.counters.persisted.Load(),
		PersistFailures: p.counters.persistFailures.Load(),
		Notified:        p.counters.notified.Load(),
		NotifyFailures:  p.counters.notifyFailures.Load(),
	}
}

func (p *Pipeline) shouldNotify(m *domain.Message) bool {
	return p.notifier != nil && m.Category == p.configuration.NotifyCategory
}

func (p *Pipeline) notifyAll(ctx context.Context, msgs []*domain.Message) {
	g := errgroup.Group{}
	g.SetLimit(p.configuration.NotifyConcurrency)
	for _, m := range msgs {
		m := m
		g.Go(func() error {
			p.notify(ctx, m)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) notify(ctx context.Context, m *domain.Message) {
	err := p.notifier.Notify(ctx, m)
	if err != nil {
		p.counters.notifyFailures.Add(1)
		p.l.WithFields(logrus.Fields{"id": m.ID, "error": err}).Warn("Could not notify")
		return
	}
	p.counters.notified.Add(1)
}

func merge(m *domain.Message, result domain.ClassificationResult) {
	if !result.Category.Valid() {
		result = domain.UnclassifiedResult("invalid category")
	}
	m.Category = result.Category
}

func asPersistenceError(op string, err error) error {
	var persistenceErr *domain.PersistenceError
	if errors.As(err, &persistenceErr) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
