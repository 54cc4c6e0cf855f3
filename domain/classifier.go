// SPDX-License-Identifier: GPL-3.0-or-later

//go:generate mockgen -destination=mocks/classifier.go -package=mocks . Classifier,SpamChecker
package domain

import "context"

// ClassifyInput is the context handed to a classifier. Body is already truncated.
type ClassifyInput struct {
	From    string
	Subject string
	Body    string
	Raw     []byte
}

type Classifier interface {
	Classify(ctx context.Context, input ClassifyInput) (ClassificationResult, error)
}

type SpamVerdict struct {
	IsSpam bool
	Score  float64
}

type SpamChecker interface {
	Check(ctx context.Context, rawMail []byte) (*SpamVerdict, error)
}
