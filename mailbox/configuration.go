// SPDX-License-Identifier: GPL-3.0-or-later
package mailbox

import (
	"fmt"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
)

const (
	DefaultFolder         = "INBOX"
	DefaultPollInterval   = 15 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultLookback       = 30 * 24 * time.Hour
	DefaultFetchFailures  = 3
	BatchSize             = 50
)

// StateObserver is called after every state transition of a connection.
type StateObserver func(accountID string, from, to domain.ConnectionState)

type ConfigFunc func(c *configuration) error

func Folder(folder string) ConfigFunc {
	return func(c *configuration) error {
		if len(folder) == 0 {
			return fmt.Errorf("Folder cannot be empty")
		}
		c.Folder = folder
		return nil
	}
}

func PollInterval(interval time.Duration) ConfigFunc {
	return func(c *configuration) error {
		if interval <= 0 {
			return fmt.Errorf("PollInterval must be positive, got %v", interval)
		}
		c.PollInterval = interval
		return nil
	}
}

func ReconnectDelay(delay time.Duration) ConfigFunc {
	return func(c *configuration) error {
		if delay < 0 {
			return fmt.Errorf("ReconnectDelay cannot be negative, got %v", delay)
		}
		c.ReconnectDelay = delay
		return nil
	}
}

// MaxReconnectAttempts limits consecutive failed attempts, 0 retries forever.
func MaxReconnectAttempts(attempts int) ConfigFunc {
	return func(c *configuration) error {
		if attempts < 0 {
			return fmt.Errorf("MaxReconnectAttempts cannot be negative, got %d", attempts)
		}
		c.MaxReconnectAttempts = attempts
		return nil
	}
}

// MaxFetchFailures is the number of consecutive ticks a failing range of new mails is
// retried before it is skipped.
func MaxFetchFailures(failures int) ConfigFunc {
	return func(c *configuration) error {
		if failures < 1 {
			return fmt.Errorf("MaxFetchFailures must be at least 1, got %d", failures)
		}
		c.MaxFetchFailures = failures
		return nil
	}
}

func ResyncOnReconnect(resync bool) ConfigFunc {
	return func(c *configuration) error {
		c.ResyncOnReconnect = resync
		return nil
	}
}

// Since sets the lower date bound of the historical backfill.
func Since(since time.Time) ConfigFunc {
	return func(c *configuration) error {
		c.Since = since
		return nil
	}
}

func ObserveState(observer StateObserver) ConfigFunc {
	return func(c *configuration) error {
		c.Observer = observer
		return nil
	}
}

type configuration struct {
	Folder               string
	PollInterval         time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	MaxFetchFailures     int
	ResyncOnReconnect    bool
	Since                time.Time

	Observer StateObserver
}

func defaultConfiguration() *configuration {
	return &configuration{
		Folder:            DefaultFolder,
		PollInterval:      DefaultPollInterval,
		ReconnectDelay:    DefaultReconnectDelay,
		MaxFetchFailures:  DefaultFetchFailures,
		ResyncOnReconnect: true,
		Since:             time.Now().Add(-DefaultLookback),
	}
}
