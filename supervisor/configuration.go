// SPDX-License-Identifier: GPL-3.0-or-later
package supervisor

import "fmt"

type ConfigFunc func(c *configuration) error

func DryRun() ConfigFunc {
	return func(c *configuration) error {
		c.DryRun = true
		return nil
	}
}

// MoveSpam moves mails categorized as spam to the given folder.
func MoveSpam(spamFolder string) ConfigFunc {
	return func(c *configuration) error {
		if len(spamFolder) == 0 {
			return fmt.Errorf("SpamFolder cannot be empty")
		}
		c.SpamFolder = spamFolder
		return nil
	}
}

type configuration struct {
	DryRun     bool
	SpamFolder string
}
