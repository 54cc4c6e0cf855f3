// SPDX-License-Identifier: GPL-3.0-or-later
package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/domain/mocks"
	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestOrchestrator(t *testing.T, classifier domain.Classifier, cfgs ...ConfigFunc) *Orchestrator {
	o, err := NewOrchestrator(classifier, cfgs...)
	require.NoError(t, err)
	o.l = nullLogger()
	return o
}

func TestNewOrchestrator(t *testing.T) {
	tests := []struct {
		name string
		cfgs []ConfigFunc
		err  string
	}{
		{"defaults", nil, ""},
		{"ok", []ConfigFunc{ChunkSize(10), ChunkDelay(0)}, ""},
		{"zero chunk", []ConfigFunc{ChunkSize(0)}, "error applying configuration: ChunkSize must be at least 1, got 0"},
		{"negative delay", []ConfigFunc{ChunkDelay(-time.Second)}, "error applying configuration: ChunkDelay cannot be negative, got -1s"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o, err := NewOrchestrator(nil, tc.cfgs...)
			if len(tc.err) == 0 {
				assert.NoError(t, err)
				assert.NotNil(t, o)
			} else {
				assert.Nil(t, o)
				assert.EqualError(t, err, tc.err)
			}
		})
	}
}

func TestClassify_BuildsContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	classifier := mocks.NewMockClassifier(ctrl)
	o := newTestOrchestrator(t, classifier)

	msg := &domain.Message{
		ID:      "1",
		From:    "alice@example.com",
		Subject: "Demo next week?",
		Text:    strings.Repeat("ä", 1500),
		Raw:     []byte("raw"),
	}

	classifier.EXPECT().
		Classify(gomock.Any(), domain.ClassifyInput{
			From:    "alice@example.com",
			Subject: "Demo next week?",
			Body:    strings.Repeat("ä", ContextLength),
			Raw:     []byte("raw"),
		}).
		Return(domain.ClassificationResult{Category: domain.MeetingBooked, Confidence: 1.4, Rationale: "asks for a demo"}, nil)

	result := o.Classify(context.Background(), msg)
	assert.Equal(t, domain.ClassificationResult{Category: domain.MeetingBooked, Confidence: 1, Rationale: "asks for a demo"}, result)
}

func TestClassify_Degrades(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(c *mocks.MockClassifier)
		expected domain.ClassificationResult
	}{
		{
			name: "retry succeeds",
			setup: func(c *mocks.MockClassifier) {
				gomock.InOrder(
					c.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(domain.ClassificationResult{}, errors.New("rate limited")),
					c.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(domain.ClassificationResult{Category: domain.Interested, Confidence: 0.8}, nil),
				)
			},
			expected: domain.ClassificationResult{Category: domain.Interested, Confidence: 0.8},
		},
		{
			name: "retry fails",
			setup: func(c *mocks.MockClassifier) {
				c.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(domain.ClassificationResult{}, errors.New("rate limited")).Times(2)
			},
			expected: domain.UnclassifiedResult("classification failed: rate limited"),
		},
		{
			name: "unknown category",
			setup: func(c *mocks.MockClassifier) {
				c.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(domain.ClassificationResult{Category: "Maybe", Confidence: 0.5}, nil)
			},
			expected: domain.UnclassifiedResult(`unknown category "Maybe"`),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			classifier := mocks.NewMockClassifier(ctrl)
			tc.setup(classifier)
			o := newTestOrchestrator(t, classifier)

			result := o.Classify(context.Background(), &domain.Message{ID: "1"})
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestClassifyBatch_Chunks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	classifier := mocks.NewMockClassifier(ctrl)
	o := newTestOrchestrator(t, classifier)

	waits := 0
	o.wait = func(_ context.Context, d time.Duration) error {
		assert.Equal(t, DefaultChunkDelay, d)
		waits++
		return nil
	}

	msgs := []*domain.Message{}
	for i := 0; i < 12; i++ {
		msgs = append(msgs, &domain.Message{ID: fmt.Sprintf("m%d", i), Subject: fmt.Sprintf("%d", i)})
	}

	// the first chunk only finishes if all five of its mails are classified concurrently
	wg := &sync.WaitGroup{}
	wg.Add(DefaultChunkSize)
	for i, m := range msgs {
		call := classifier.EXPECT().Classify(gomock.Any(), domain.ClassifyInput{Subject: m.Subject})
		if i < DefaultChunkSize {
			call.DoAndReturn(func(context.Context, domain.ClassifyInput) (domain.ClassificationResult, error) {
				wg.Done()
				wg.Wait()
				return domain.ClassificationResult{Category: domain.NotInterested, Confidence: 0.7}, nil
			})
		} else {
			call.Return(domain.ClassificationResult{Category: domain.OutOfOffice, Confidence: 0.6}, nil)
		}
	}

	resultsChan := make(chan map[string]domain.ClassificationResult)
	go func() {
		resultsChan <- o.ClassifyBatch(context.Background(), msgs)
	}()

	select {
	case results := <-resultsChan:
		assert.Equal(t, 2, waits, "12 mails in chunks of 5 are 3 chunks")
		require.Len(t, results, 12)
		for i, m := range msgs {
			if i < DefaultChunkSize {
				assert.Equal(t, domain.NotInterested, results[m.ID].Category)
			} else {
				assert.Equal(t, domain.OutOfOffice, results[m.ID].Category)
			}
		}
	case <-time.After(5 * time.Second):
		assert.Fail(t, "timeout when classifying chunks concurrently")
	}
}

func TestClassifyBatch_Interrupted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	classifier := mocks.NewMockClassifier(ctrl)
	o := newTestOrchestrator(t, classifier, ChunkSize(2))
	o.wait = func(context.Context, time.Duration) error {
		return context.Canceled
	}

	classifier.EXPECT().
		Classify(gomock.Any(), gomock.Any()).
		Return(domain.ClassificationResult{Category: domain.Interested, Confidence: 0.9}, nil).
		Times(2)

	msgs := []*domain.Message{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	results := o.ClassifyBatch(context.Background(), msgs)

	require.Len(t, results, 3)
	assert.Equal(t, domain.Interested, results["a"].Category)
	assert.Equal(t, domain.Interested, results["b"].Category)
	assert.Equal(t, domain.UnclassifiedResult("classification interrupted"), results["c"])
}

func TestClassifyBatch_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	o := newTestOrchestrator(t, mocks.NewMockClassifier(ctrl))
	assert.Empty(t, o.ClassifyBatch(context.Background(), nil))
}
