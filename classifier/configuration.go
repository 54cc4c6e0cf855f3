// SPDX-License-Identifier: GPL-3.0-or-later
package classifier

import (
	"fmt"
	"time"
)

type ConfigFunc func(c *configuration) error

// ChunkSize sets how many messages of a batch are classified at the same time.
func ChunkSize(size int) ConfigFunc {
	return func(c *configuration) error {
		if size < 1 {
			return fmt.Errorf("ChunkSize must be at least 1, got %d", size)
		}
		c.ChunkSize = size
		return nil
	}
}

// ChunkDelay is the pause between two chunks of a batch.
func ChunkDelay(delay time.Duration) ConfigFunc {
	return func(c *configuration) error {
		if delay < 0 {
			return fmt.Errorf("ChunkDelay cannot be negative, got %v", delay)
		}
		c.ChunkDelay = delay
		return nil
	}
}

type configuration struct {
	ChunkSize  int
	ChunkDelay time.Duration
}
