// SPDX-License-Identifier: GPL-3.0-or-later
package classifier

import (
	"context"
	"fmt"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"

	"github.com/sirupsen/logrus"
)

// SpamGate asks a spam checker before the wrapped classifier. Mails the checker flags are
// categorized as spam right away, checker errors fall through to the classifier.
type SpamGate struct {
	checker    domain.SpamChecker
	classifier domain.Classifier

	l *logrus.Logger
}

func NewSpamGate(checker domain.SpamChecker, classifier domain.Classifier) *SpamGate {
	return &SpamGate{
		checker:    checker,
		classifier: classifier,
		l:          log.Logger(log.LOG_CLASSIFIER),
	}
}

func (g *SpamGate) Classify(ctx context.Context, input domain.ClassifyInput) (domain.ClassificationResult, error) {
	if len(input.Raw) > 0 {
		verdict, err := g.checker.Check(ctx, input.Raw)
		if err != nil {
			g.l.WithField("error", err).Warn("Spam check failed, falling back to classifier")
		} else if verdict.IsSpam {
			return domain.ClassificationResult{
				Category:   domain.Spam,
				Confidence: 1,
				Rationale:  fmt.Sprintf("spam checker score %.1f", verdict.Score),
			}, nil
		}
	}

	return g.classifier.Classify(ctx, input)
}
