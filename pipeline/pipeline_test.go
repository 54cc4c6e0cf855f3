// SPDX-License-Identifier: GPL-3.0-or-later
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

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

type fixture struct {
	ctrl        *gomock.Controller
	pipeline    *Pipeline
	categorizer *MockCategorizer
	persistence *mocks.MockPersistence
	notifier    *mocks.MockNotifier
}

func setup(t *testing.T, cfgs ...ConfigFunc) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		ctrl:        ctrl,
		categorizer: NewMockCategorizer(ctrl),
		persistence: mocks.NewMockPersistence(ctrl),
		notifier:    mocks.NewMockNotifier(ctrl),
	}

	p, err := NewPipeline(f.categorizer, f.persistence, f.notifier, cfgs...)
	require.NoError(t, err)
	p.l = nullLogger()
	f.pipeline = p
	return f
}

func messages(n int) []*domain.Message {
	msgs := []*domain.Message{}
	for i := 0; i < n; i++ {
		msgs = append(msgs, &domain.Message{ID: fmt.Sprintf("m%d", i), AccountID: "acc1", Subject: fmt.Sprintf("Mail %d", i)})
	}
	return msgs
}

func TestNewPipeline(t *testing.T) {
	tests := []struct {
		name string
		cfgs []ConfigFunc
		err  string
	}{
		{"ok", []ConfigFunc{NotifyOn(domain.MeetingBooked), NotifyConcurrency(2)}, ""},
		{"unknown category", []ConfigFunc{NotifyOn("Maybe")}, `error applying configuration: unknown notify category "Maybe"`},
		{"zero concurrency", []ConfigFunc{NotifyConcurrency(0)}, "error applying configuration: NotifyConcurrency must be at least 1, got 0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewPipeline(nil, nil, nil, tc.cfgs...)
			if len(tc.err) == 0 {
				assert.NotNil(t, p)
				assert.NoError(t, err)
			} else {
				assert.Nil(t, p)
				assert.EqualError(t, err, tc.err)
			}
		})
	}
}

func TestProcessBackfill_Empty(t *testing.T) {
	f := setup(t)
	defer f.ctrl.Finish()

	// no expectations: neither classify nor persist may be called
	assert.NoError(t, f.pipeline.ProcessBackfill(context.Background(), nil))
	assert.NoError(t, f.pipeline.ProcessBackfill(context.Background(), []*domain.Message{}))
	assert.Equal(t, Stats{}, f.pipeline.Stats())
}

func TestProcessBackfill(t *testing.T) {
	f := setup(t)
	defer f.ctrl.Finish()

	msgs := messages(4)
	f.categorizer.EXPECT().
		ClassifyBatch(gomock.Any(), msgs).
		Return(map[string]domain.ClassificationResult{
			"m0": {Category: domain.Interested, Confidence: 0.9},
			"m1": {Category: domain.Spam, Confidence: 1},
			"m3": {Category: domain.Interested, Confidence: 0.6},
		})
	f.persistence.EXPECT().
		BulkCreateOrReplace(gomock.Any(), msgs).
		DoAndReturn(func(_ context.Context, stored []*domain.Message) error {
			for _, m := range stored {
				assert.True(t, m.Category.Valid(), "stored mails always carry a category")
			}
			return nil
		})
	f.notifier.EXPECT().Notify(gomock.Any(), msgs[0]).Return(nil)
	f.notifier.EXPECT().Notify(gomock.Any(), msgs[3]).Return(errors.New("webhook down"))

	err := f.pipeline.ProcessBackfill(context.Background(), msgs)
	assert.NoError(t, err)

	assert.Equal(t, domain.Interested, msgs[0].Category)
	assert.Equal(t, domain.Spam, msgs[1].Category)
	assert.Equal(t, domain.Unclassified, msgs[2].Category, "a missing result falls back to Unclassified")
	assert.Equal(t, domain.Interested, msgs[3].Category)
	assert.Equal(t, Stats{Processed: 4, Persisted: 4, Notified: 1, NotifyFailures: 1}, f.pipeline.Stats())
}

func TestProcessBackfill_PersistFailure(t *testing.T) {
	f := setup(t)
	defer f.ctrl.Finish()

	msgs := messages(2)
	f.categorizer.EXPECT().
		ClassifyBatch(gomock.Any(), msgs).
		Return(map[string]domain.ClassificationResult{
			"m0": {Category: domain.Interested, Confidence: 0.9},
			"m1": {Category: domain.Interested, Confidence: 0.9},
		})
	f.persistence.EXPECT().BulkCreateOrReplace(gomock.Any(), msgs).Return(errors.New("disk full"))
	// no notification for mails that were not stored

	err := f.pipeline.ProcessBackfill(context.Background(), msgs)
	var persistenceErr *domain.PersistenceError
	require.True(t, errors.As(err, &persistenceErr))
	assert.EqualError(t, err, "could not save messages: disk full")
	assert.Equal(t, Stats{Processed: 2, PersistFailures: 2}, f.pipeline.Stats())
}

func TestProcessIncoming_NotifiesInterested(t *testing.T) {
	f := setup(t)
	defer f.ctrl.Finish()

	msg := messages(1)[0]
	gomock.InOrder(
		f.categorizer.EXPECT().Classify(gomock.Any(), msg).Return(domain.ClassificationResult{Category: domain.Interested, Confidence: 0.9}),
		f.persistence.EXPECT().
			CreateOrReplace(gomock.Any(), msg).
			DoAndReturn(func(_ context.Context, m *domain.Message) error {
				assert.Equal(t, domain.Interested, m.Category)
				return nil
			}),
		f.notifier.EXPECT().Notify(gomock.Any(), msg).Return(nil).Times(1),
	)

	assert.NoError(t, f.pipeline.ProcessIncoming(context.Background(), msg))
	assert.Equal(t, Stats{Processed: 1, Persisted: 1, Notified: 1}, f.pipeline.Stats())
}

func TestProcessIncoming_OtherCategoriesAreNotNotified(t *testing.T) {
	f := setup(t, NotifyOn(domain.MeetingBooked))
	defer f.ctrl.Finish()

	msgs := messages(2)
	f.categorizer.EXPECT().Classify(gomock.Any(), msgs[0]).Return(domain.ClassificationResult{Category: domain.Interested, Confidence: 0.9})
	f.categorizer.EXPECT().Classify(gomock.Any(), msgs[1]).Return(domain.ClassificationResult{Category: domain.MeetingBooked, Confidence: 0.8})
	f.persistence.EXPECT().CreateOrReplace(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	f.notifier.EXPECT().Notify(gomock.Any(), msgs[1]).Return(nil)

	for _, m := range msgs {
		assert.NoError(t, f.pipeline.ProcessIncoming(context.Background(), m))
	}
}

func TestProcessIncoming_PersistFailureReportedOnce(t *testing.T) {
	f := setup(t)
	defer f.ctrl.Finish()

	msg := messages(1)[0]
	f.categorizer.EXPECT().Classify(gomock.Any(), msg).Return(domain.ClassificationResult{Category: domain.Interested, Confidence: 0.9})
	f.persistence.EXPECT().
		CreateOrReplace(gomock.Any(), msg).
		Return(&domain.PersistenceError{Op: "save message", Err: errors.New("database is locked")})

	err := f.pipeline.ProcessIncoming(context.Background(), msg)
	assert.EqualError(t, err, "could not save message: database is locked")
	assert.Equal(t, Stats{Processed: 1, PersistFailures: 1}, f.pipeline.Stats())
}

func TestProcessIncoming_WithoutNotifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	categorizer := NewMockCategorizer(ctrl)
	persistence := mocks.NewMockPersistence(ctrl)
	p, err := NewPipeline(categorizer, persistence, nil)
	require.NoError(t, err)
	p.l = nullLogger()

	msg := messages(1)[0]
	categorizer.EXPECT().Classify(gomock.Any(), msg).Return(domain.ClassificationResult{Category: domain.Interested, Confidence: 0.9})
	persistence.EXPECT().CreateOrReplace(gomock.Any(), msg).Return(nil)

	assert.NoError(t, p.ProcessIncoming(context.Background(), msg))
}

func TestRecategorize(t *testing.T) {
	f := setup(t)
	defer f.ctrl.Finish()

	stored := &domain.Message{ID: "m1", Subject: "Out until Monday", Category: domain.Unclassified}
	gomock.InOrder(
		f.persistence.EXPECT().GetByID(gomock.Any(), "m1").Return(stored, nil),
		f.categorizer.EXPECT().Classify(gomock.Any(), stored).Return(domain.ClassificationResult{Category: domain.OutOfOffice, Confidence: 0.95}),
		f.persistence.EXPECT().UpdateCategory(gomock.Any(), "m1", domain.OutOfOffice).Return(nil),
	)

	msg, err := f.pipeline.Recategorize(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutOfOffice, msg.Category)
}

func TestRecategorize_NotFound(t *testing.T) {
	f := setup(t)
	defer f.ctrl.Finish()

	// no classify, no update and no notification
	f.persistence.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, &domain.NotFoundError{ID: "missing"})

	msg, err := f.pipeline.Recategorize(context.Background(), "missing")
	assert.Nil(t, msg)
	assert.True(t, domain.IsNotFound(err))
}
