// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"

	"github.com/emersion/go-imap"
	compress "github.com/emersion/go-imap-compress"
	move "github.com/emersion/go-imap-move"
	uidplus "github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
)

const (
	DialTimeout = 30 * time.Second
	FetchBuffer = 10
)

// Dialer opens authenticated sessions, one per call.
type Dialer struct {
	Timeout time.Duration

	l *logrus.Logger
}

func NewDialer() *Dialer {
	return &Dialer{
		Timeout: DialTimeout,
		l:       log.Logger(log.LOG_IMAP),
	}
}

func (d *Dialer) Dial(account *domain.Account) (domain.MailSession, error) {
	netDialer := &net.Dialer{
		Timeout:   d.Timeout,
		KeepAlive: 30 * time.Second,
	}

	var imapClient *client.Client
	var err error
	if account.TLS {
		imapClient, err = client.DialWithDialerTLS(netDialer, account.Host, nil)
	} else {
		imapClient, err = client.DialWithDialer(netDialer, account.Host)
	}
	if err != nil {
		return nil, fmt.Errorf("could not dial to imap: %w", err)
	}

	err = imapClient.Login(account.User, account.Password)
	if err != nil {
		_ = imapClient.Logout()
		return nil, fmt.Errorf("could not login to imap: %w", err)
	}

	baseLogger := d.l.WithFields(logrus.Fields{"account": account.ID, "server": account.Host})
	baseLogger.Debug("Logged in to server")

	if account.Compress {
		err = enableCompression(imapClient, baseLogger)
		if err != nil {
			_ = imapClient.Logout()
			return nil, err
		}
	}

	session, err := newSession(imapClient, baseLogger)
	if err != nil {
		_ = imapClient.Logout()
		return nil, err
	}

	return session, nil
}

func enableCompression(imapClient *client.Client, l *logrus.Entry) error {
	compressClient := compress.NewClient(imapClient)
	supported, err := compressClient.SupportCompress(compress.Deflate)
	if err != nil {
		return fmt.Errorf("could not check for COMPRESS support: %w", err)
	}

	if !supported {
		l.Info("COMPRESS=DEFLATE not supported on server, continuing uncompressed")
		return nil
	}

	err = compressClient.Compress(compress.Deflate)
	if err != nil {
		return fmt.Errorf("could not enable compression: %w", err)
	}
	l.Debug("COMPRESS=DEFLATE enabled")

	return nil
}

// Session is a logged in connection to one account.
type Session struct {
	connection  *client.Client
	mailDeleter deleter
	mailMover   mover

	selectedFolder string

	l *logrus.Entry
}

func newSession(imapClient *client.Client, l *logrus.Entry) (*Session, error) {
	uidPlusClient := uidplus.NewClient(imapClient)
	uidPlusSupported, err := uidPlusClient.SupportUidPlus()
	if err != nil {
		return nil, fmt.Errorf("could not check for UIDPLUS support: %w", err)
	}

	moveClient := move.NewClient(imapClient)
	moveSupported, err := moveClient.SupportMove()
	if err != nil {
		return nil, fmt.Errorf("could not check for MOVE support: %w", err)
	}

	s := &Session{
		connection: imapClient,
		l:          l,
	}

	if uidPlusSupported {
		l.Debug("UIDPLUS supported on server, using UID delete")
		s.mailDeleter = &uidPlusDeleter{
			imapConn: &uidPlusSession{Session: s, uidplusClient: uidPlusClient},
		}
	} else {
		l.Debug("UIDPLUS not supported on server, falling back to flag&expunge")
		s.mailDeleter = &compatibilityDeleter{imapConn: s}
	}

	if moveSupported {
		l.Debug("MOVE supported on server")
		s.mailMover = &moveMover{moveClient: moveClient}
	} else {
		l.Debug("MOVE not supported on server, falling back to copy&delete")
		s.mailMover = &compatibilityMover{
			imapConn: &copyDeleteSession{Session: s},
		}
	}

	return s, nil
}

func (s *Session) Select(folder string) (uint32, error) {
	status, err := s.connection.Select(folder, false)
	if err != nil {
		return 0, fmt.Errorf("could not select folder %s: %w", folder, err)
	}

	s.selectedFolder = folder
	return status.Messages, nil
}

func (s *Session) Search(since time.Time) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	seqNums, err := s.connection.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("could not search folder %s: %w", s.selectedFolder, err)
	}

	return seqNums, nil
}

// Fetch retrieves the full bodies of the given sequence numbers without setting \Seen.
func (s *Session) Fetch(seqNums []uint32) ([]*domain.RawMail, error) {
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := &imap.SeqSet{}
	seqset.AddNum(seqNums...)

	fullBodySection := &imap.BodySectionName{
		Peek: true,
	}
	fetchItems := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, fullBodySection.FetchItem()}

	messages := make(chan *imap.Message, FetchBuffer)
	done := make(chan error, 1)
	go func() {
		done <- s.connection.Fetch(seqset, fetchItems, messages)
	}()

	mails := []*domain.RawMail{}
	var readErr error
	for msg := range messages {
		// keep draining so the fetch goroutine can finish
		if readErr != nil {
			continue
		}

		raw := &domain.RawMail{
			SeqNum: msg.SeqNum,
			Uid:    msg.Uid,
			Flags:  msg.Flags,
		}

		r := msg.GetBody(fullBodySection)
		if r == nil {
			s.l.WithField("seqnum", msg.SeqNum).Warn("Server returned no body")
			mails = append(mails, raw)
			continue
		}

		raw.Body, readErr = io.ReadAll(r)
		if readErr != nil {
			readErr = fmt.Errorf("could not read mail body: %w", readErr)
			continue
		}
		mails = append(mails, raw)
	}

	err := <-done
	if err != nil {
		return nil, fmt.Errorf("could not fetch mails: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}

	sort.Slice(mails, func(i, j int) bool { return mails[i].SeqNum < mails[j].SeqNum })
	return mails, nil
}

func (s *Session) Move(uids []uint32, folder string) error {
	if len(uids) == 0 {
		return nil
	}

	err := s.mailMover.move(uids, folder)
	if err != nil {
		return fmt.Errorf("could not move %d mails to %s: %w", len(uids), folder, err)
	}

	s.l.WithFields(logrus.Fields{"mails": len(uids), "from": s.selectedFolder, "to": folder}).Debug("Moved mails")
	return nil
}

func (s *Session) Done() <-chan struct{} {
	return s.connection.LoggedOut()
}

func (s *Session) Logout() error {
	err := s.connection.Logout()
	if err != nil && !errors.Is(err, client.ErrAlreadyLoggedOut) {
		return fmt.Errorf("could not logout: %w", err)
	}

	return nil
}

func (s *Session) flagDeleted(uids []uint32) (*imap.SeqSet, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)
	err := s.connection.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.DeletedFlag}, nil)
	if err != nil {
		return nil, fmt.Errorf("could not set delete flag: %w", err)
	}

	return seqset, nil
}

func (s *Session) expunge(ch chan uint32) error {
	return s.connection.Expunge(ch)
}

func (s *Session) uidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	return s.connection.UidSearch(criteria)
}

type uidPlusSession struct {
	*Session
	uidplusClient *uidplus.Client
}

func (u *uidPlusSession) uidExpunge(seqSet *imap.SeqSet, ch chan uint32) error {
	return u.uidplusClient.UidExpunge(seqSet, ch)
}

type copyDeleteSession struct {
	*Session
}

func (c *copyDeleteSession) delete(uids []uint32) error {
	return c.mailDeleter.delete(uids)
}

func (c *copyDeleteSession) deleteReady() (error, error) {
	return c.mailDeleter.deleteReady()
}

func (c *copyDeleteSession) uidCopy(seqset *imap.SeqSet, dest string) error {
	return c.connection.UidCopy(seqset, dest)
}
