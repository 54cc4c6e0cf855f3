// SPDX-License-Identifier: GPL-3.0-or-later

//go:generate mockgen -destination=mocks/imap.go -package=mocks . MailSession,SessionDialer
package domain

import "time"

type ConnectionState int

const (
	Disconnected = ConnectionState(iota)
	Connecting
	Connected
	Syncing
	IdleWatching
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Syncing:
		return "syncing"
	case IdleWatching:
		return "idle-watching"
	}
	return "unknown"
}

type RawMail struct {
	SeqNum uint32
	Uid    uint32
	Flags  []string
	Body   []byte
}

// MailSession is one authenticated session to a mail server.
type MailSession interface {
	// Select opens the folder and returns its current item count.
	Select(folder string) (uint32, error)
	// Search returns the sequence numbers of all items received since the date.
	Search(since time.Time) ([]uint32, error)
	Fetch(seqNums []uint32) ([]*RawMail, error)
	Move(uids []uint32, folder string) error
	// Done is closed once the server connection is gone.
	Done() <-chan struct{}
	Logout() error
}

type SessionDialer interface {
	Dial(account *Account) (MailSession, error)
}
