// SPDX-License-Identifier: GPL-3.0-or-later
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/mail"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize  = 5
	DefaultChunkDelay = time.Second
	// ContextLength is the number of body characters handed to the classifier.
	ContextLength = 1000
)

// Orchestrator asks a classifier for a category and never fails: every error ends up as
// an Unclassified result.
type Orchestrator struct {
	classifier    domain.Classifier
	configuration *configuration

	wait func(ctx context.Context, d time.Duration) error

	l *logrus.Logger
}

func NewOrchestrator(classifier domain.Classifier, configFunc ...ConfigFunc) (*Orchestrator, error) {
	config := &configuration{
		ChunkSize:  DefaultChunkSize,
		ChunkDelay: DefaultChunkDelay,
	}
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Orchestrator{
		classifier:    classifier,
		configuration: config,
		wait:          sleep,
		l:             log.Logger(log.LOG_CLASSIFIER),
	}, nil
}

func (o *Orchestrator) Classify(ctx context.Context, msg *domain.Message) domain.ClassificationResult {
	input := domain.ClassifyInput{
		From:    msg.From,
		Subject: msg.Subject,
		Body:    truncate(msg.Text, ContextLength),
		Raw:     msg.Raw,
	}
	mailLogger := o.l.WithFields(logrus.Fields{"id": msg.ID, "subject": mail.ShortSubject(msg.Subject)})

	result, err := o.classifier.Classify(ctx, input)
	if err != nil {
		mailLogger.WithField("error", err).Debug("Classification failed, retrying once")
		result, err = o.classifier.Classify(ctx, input)
	}
	if err != nil {
		classificationErr := &domain.ClassificationError{Err: err}
		mailLogger.WithField("error", classificationErr).Warn("Could not classify mail")
		return domain.UnclassifiedResult(classificationErr.Error())
	}

	if !result.Category.Valid() {
		mailLogger.WithField("category", result.Category).Warn("Classifier returned an unknown category")
		return domain.UnclassifiedResult(fmt.Sprintf("unknown category %q", result.Category))
	}

	if result.Confidence < 0 {
		result.Confidence = 0
	} else if result.Confidence > 1 {
		result.Confidence = 1
	}

	mailLogger.WithFields(logrus.Fields{"category": result.Category, "confidence": result.Confidence}).Debug("Classified mail")
	return result
}

// ClassifyBatch classifies chunk by chunk with a pause in between. The result contains
// every message id.
func (o *Orchestrator) ClassifyBatch(ctx context.Context, msgs []*domain.Message) map[string]domain.ClassificationResult {
	results := make(map[string]domain.ClassificationResult, len(msgs))
	if len(msgs) == 0 {
		return results
	}

	chunks := partition(msgs, o.configuration.ChunkSize)
	o.l.WithFields(logrus.Fields{"mails": len(msgs), "chunks": len(chunks)}).Info("Classifying batch")

	for i, chunk := range chunks {
		if i > 0 {
			err := o.wait(ctx, o.configuration.ChunkDelay)
			if err != nil {
				o.l.WithFields(logrus.Fields{"remaining": len(chunks) - i, "error": err}).Warn("Batch classification interrupted")
				for _, rest := range chunks[i:] {
					for _, m := range rest {
						results[m.ID] = domain.UnclassifiedResult("classification interrupted")
					}
				}
				break
			}
		}

		start := time.Now()
		chunkResults := make([]domain.ClassificationResult, len(chunk))
		g := errgroup.Group{}
		for j := range chunk {
			j := j
			g.Go(func() error {
				chunkResults[j] = o.Classify(ctx, chunk[j])
				return nil
			})
		}
		_ = g.Wait()

		for j, m := range chunk {
			results[m.ID] = chunkResults[j]
		}
		o.l.WithFields(logrus.Fields{"chunk": i + 1, "chunksize": len(chunk), "duration": time.Since(start)}).Debug("Classified chunk")
	}

	return results
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}

// taken from https://github.com/golang/go/wiki/SliceTricks
func partition(msgs []*domain.Message, partitionSize int) [][]*domain.Message {
	batches := make([][]*domain.Message, 0, (len(msgs)+partitionSize-1)/partitionSize)

	for partitionSize < len(msgs) {
		msgs, batches = msgs[partitionSize:], append(batches, msgs[0:partitionSize:partitionSize])
	}
	batches = append(batches, msgs)

	return batches
}
