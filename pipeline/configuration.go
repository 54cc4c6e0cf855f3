// SPDX-License-Identifier: GPL-3.0-or-later
package pipeline

import (
	"fmt"

	"github.com/CrawX/go-imap-triage/domain"
)

type ConfigFunc func(c *configuration) error

// NotifyOn selects the category that triggers notifications.
func NotifyOn(category domain.Category) ConfigFunc {
	return func(c *configuration) error {
		if !category.Valid() {
			return fmt.Errorf("unknown notify category %q", category)
		}
		c.NotifyCategory = category
		return nil
	}
}

// NotifyConcurrency limits how many notifications of a backfill run at the same time.
func NotifyConcurrency(n int) ConfigFunc {
	return func(c *configuration) error {
		if n < 1 {
			return fmt.Errorf("NotifyConcurrency must be at least 1, got %d", n)
		}
		c.NotifyConcurrency = n
		return nil
	}
}

type configuration struct {
	NotifyCategory    domain.Category
	NotifyConcurrency int
}
