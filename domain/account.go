// SPDX-License-Identifier: GPL-3.0-or-later
package domain

// Account is one mailbox account. It is read-only after the configuration is loaded.
type Account struct {
	ID   string
	Name string

	// Host is host:port of the imap server
	Host     string
	User     string
	Password string

	TLS      bool
	Compress bool
}
