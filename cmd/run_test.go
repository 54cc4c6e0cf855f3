// SPDX-License-Identifier: GPL-3.0-or-later
package cmd

import (
	"context"
	"io"
	"testing"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/persistence"
	"github.com/CrawX/go-imap-triage/pipeline"
	"github.com/CrawX/go-imap-triage/supervisor"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestShutdown_TearsDownSupervisor(t *testing.T) {
	p, err := persistence.NewPersistence(":memory:")
	require.NoError(t, err)
	defer p.Close()

	pl, err := pipeline.NewPipeline(nil, p, nil)
	require.NoError(t, err)
	s, err := supervisor.NewSupervisor(pl, nil)
	require.NoError(t, err)
	require.NoError(t, s.InitializeAll(context.Background(), nil))

	func() {
		defer shutdown(s, pl, p, nullLogger())
	}()

	assert.ErrorIs(t, s.InitializeAll(context.Background(), []*domain.Account{{ID: "late"}}), supervisor.ErrShutdown)
	// a second teardown is harmless
	shutdown(s, pl, p, nullLogger())
}
