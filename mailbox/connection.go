// SPDX-License-Identifier: GPL-3.0-or-later
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/mail"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrSessionClosed = errors.New("session closed by server")
)

// Handler receives the messages observed by a connection.
type Handler interface {
	// HandleBackfill is called with the historical messages before watching starts.
	HandleBackfill(ctx context.Context, account *domain.Account, messages []*domain.Message)
	// HandleNew must not block, it is called from the poll loop.
	HandleNew(ctx context.Context, message *domain.Message)
}

// Connection watches one folder of one account. The session, the watermark and the
// state are only written by the goroutine running Run or WatchForChanges.
type Connection struct {
	account       *domain.Account
	dialer        domain.SessionDialer
	configuration *configuration

	mu        sync.Mutex
	state     domain.ConnectionState
	session   domain.MailSession
	watermark uint32
	owned     bool
	moves     map[string][]uint32
	// consecutive failed fetches of the current delta, only touched by tick
	fetchFailures int

	quit     chan struct{}
	quitOnce sync.Once

	l *logrus.Entry
}

func NewConnection(account *domain.Account, dialer domain.SessionDialer, configFunc ...ConfigFunc) (*Connection, error) {
	config := defaultConfiguration()
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Connection{
		account:       account,
		dialer:        dialer,
		configuration: config,
		state:         domain.Disconnected,
		moves:         map[string][]uint32{},
		quit:          make(chan struct{}),
		l:             log.Logger(log.LOG_CONNECTION).WithFields(logrus.Fields{"account": account.ID}),
	}, nil
}

func (c *Connection) Account() *domain.Account {
	return c.account
}

func (c *Connection) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Watermark is the item count of the watched folder as of the last successful poll.
func (c *Connection) Watermark() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watermark
}

func (c *Connection) setState(state domain.ConnectionState) {
	c.mu.Lock()
	previous := c.state
	c.state = state
	c.mu.Unlock()

	if previous == state {
		return
	}
	c.l.WithFields(logrus.Fields{"from": previous, "to": state}).Debug("State changed")
	if c.configuration.Observer != nil {
		c.configuration.Observer(c.account.ID, previous, state)
	}
}

func (c *Connection) currentSession() domain.MailSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Connection) connectionError(op string, err error) error {
	return &domain.ConnectionError{AccountID: c.account.ID, Op: op, Err: err}
}

// Connect opens a session and selects the folder. The watermark starts at the current
// item count, so only mail arriving later is reported by the watch loop.
func (c *Connection) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return c.connectionError("connect", err)
	}

	c.setState(domain.Connecting)
	session, err := c.dialer.Dial(c.account)
	if err != nil {
		c.setState(domain.Disconnected)
		return c.connectionError("connect", err)
	}

	count, err := session.Select(c.configuration.Folder)
	if err != nil {
		_ = session.Logout()
		c.setState(domain.Disconnected)
		return c.connectionError("select", err)
	}

	c.mu.Lock()
	c.session = session
	c.watermark = count
	c.fetchFailures = 0
	c.mu.Unlock()

	c.l.WithFields(logrus.Fields{"folder": c.configuration.Folder, "mails": count}).Info("Connected")
	c.setState(domain.Connected)
	return nil
}

// FetchHistorical returns every parseable message received since the given date, ordered
// by sequence number. Mails that cannot be parsed are logged and skipped.
func (c *Connection) FetchHistorical(ctx context.Context, since time.Time) ([]*domain.Message, error) {
	session := c.currentSession()
	if session == nil {
		return nil, c.connectionError("fetch historical", ErrNotConnected)
	}

	c.setState(domain.Syncing)
	seqNums, err := session.Search(since)
	if err != nil {
		return nil, c.connectionError("search", err)
	}
	sort.Slice(seqNums, func(i, j int) bool { return seqNums[i] < seqNums[j] })

	batches := partition(seqNums, BatchSize)
	c.l.WithFields(logrus.Fields{"since": since.Format("2006-01-02"), "mails": len(seqNums), "batches": len(batches)}).Info("Fetching historical mails")

	messages := []*domain.Message{}
	for _, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, c.connectionError("fetch historical", err)
		}

		start := time.Now()
		raws, err := session.Fetch(batch)
		if err != nil {
			return nil, c.connectionError("fetch historical", err)
		}
		messages = append(messages, c.parseAll(raws)...)
		c.l.WithFields(logrus.Fields{"batchsize": len(batch), "duration": time.Since(start)}).Debug("Fetched historical batch")
	}

	sort.SliceStable(messages, func(i, j int) bool { return messages[i].SeqNum < messages[j].SeqNum })
	return messages, nil
}

func (c *Connection) parseAll(raws []*domain.RawMail) []*domain.Message {
	messages := make([]*domain.Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := mail.Parse(raw, c.account.ID, c.configuration.Folder)
		if err != nil {
			c.l.WithFields(logrus.Fields{"seqnum": raw.SeqNum, "error": err}).Warn("Skipping unparseable mail")
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// WatchForChanges polls the folder until ctx is done, Disconnect is called or the server
// closes the session. Only the latter is reported as an error.
func (c *Connection) WatchForChanges(ctx context.Context, handler Handler) error {
	ctx, cancel := c.bind(ctx)
	defer cancel()

	if !c.own() {
		return fmt.Errorf("connection for account %s is already being watched", c.account.ID)
	}
	defer c.release()

	err := c.watch(ctx, handler)
	if c.quitting() {
		c.dropSession()
	}
	return err
}

func (c *Connection) watch(ctx context.Context, handler Handler) error {
	session := c.currentSession()
	if session == nil {
		return c.connectionError("watch", ErrNotConnected)
	}

	c.setState(domain.IdleWatching)
	ticker := time.NewTicker(c.configuration.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return c.connectionError("watch", ErrSessionClosed)
		case <-ticker.C:
			c.tick(ctx, session, handler)
		}
	}
}

// tick runs one poll. Errors are logged and the watermark is left untouched so the
// next tick retries the same range, at most MaxFetchFailures times in a row. After that
// the range is skipped so one broken mail cannot stall the account.
func (c *Connection) tick(ctx context.Context, session domain.MailSession, handler Handler) {
	c.applyMoves(session)

	count, err := session.Select(c.configuration.Folder)
	if err != nil {
		c.l.WithField("error", err).Warn("Could not poll folder")
		return
	}

	c.mu.Lock()
	previous := c.watermark
	c.mu.Unlock()

	if count <= previous {
		if count < previous {
			c.l.WithFields(logrus.Fields{"previous": previous, "mails": count}).Debug("Folder shrank")
		}
		c.fetchFailures = 0
		c.setWatermark(count)
		return
	}

	seqNums := make([]uint32, 0, count-previous)
	for seqNum := previous + 1; seqNum <= count; seqNum++ {
		seqNums = append(seqNums, seqNum)
	}

	raws, err := session.Fetch(seqNums)
	if err != nil {
		c.fetchFailures++
		if c.fetchFailures < c.configuration.MaxFetchFailures {
			c.l.WithFields(logrus.Fields{"new": len(seqNums), "failures": c.fetchFailures, "error": err}).Warn("Could not fetch new mails")
			return
		}

		c.l.WithFields(logrus.Fields{"from": previous + 1, "to": count, "failures": c.fetchFailures, "error": err}).Warn("Could not fetch new mails, skipping them")
		c.fetchFailures = 0
		c.setWatermark(count)
		return
	}
	c.fetchFailures = 0
	c.setWatermark(count)

	messages := c.parseAll(raws)
	c.l.WithFields(logrus.Fields{"new": len(seqNums), "parsed": len(messages)}).Info("Received new mails")
	for _, msg := range messages {
		handler.HandleNew(ctx, msg)
	}
}

func (c *Connection) setWatermark(count uint32) {
	c.mu.Lock()
	c.watermark = count
	c.mu.Unlock()
}

// RequestMove queues a mail for moving to another folder. Moves run on the poll loop
// before the next poll.
func (c *Connection) RequestMove(uid uint32, folder string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moves[folder] = append(c.moves[folder], uid)
}

func (c *Connection) applyMoves(session domain.MailSession) {
	c.mu.Lock()
	moves := c.moves
	c.moves = map[string][]uint32{}
	c.mu.Unlock()

	for folder, uids := range moves {
		err := session.Move(uids, folder)
		if err != nil {
			c.l.WithFields(logrus.Fields{"destination": folder, "mails": len(uids), "error": err}).Error("Could not move mails")
			continue
		}

		c.mu.Lock()
		if c.watermark >= uint32(len(uids)) {
			c.watermark -= uint32(len(uids))
		} else {
			c.watermark = 0
		}
		c.mu.Unlock()
		c.l.WithFields(logrus.Fields{"destination": folder, "mails": len(uids)}).Info("Moved mails")
	}
}

// Disconnect stops a running loop and closes the session. A running loop closes the
// session itself once its current call returns. Calling Disconnect again is a no-op.
func (c *Connection) Disconnect() error {
	c.quitOnce.Do(func() { close(c.quit) })

	c.mu.Lock()
	if c.owned {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.dropSession()
}

func (c *Connection) dropSession() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session == nil {
		c.setState(domain.Disconnected)
		return nil
	}

	err := session.Logout()
	c.setState(domain.Disconnected)
	if err != nil {
		return c.connectionError("disconnect", err)
	}
	return nil
}

// Run keeps the connection alive until ctx is done or Disconnect is called: connect,
// backfill, watch and after any failure wait ReconnectDelay and start over.
func (c *Connection) Run(ctx context.Context, handler Handler) error {
	ctx, cancel := c.bind(ctx)
	defer cancel()

	if !c.own() {
		return fmt.Errorf("connection for account %s is already running", c.account.ID)
	}
	defer c.release()

	backfilled := false
	attempts := 0
	for {
		err := c.Connect(ctx)
		if err == nil {
			attempts = 0
			if !backfilled || c.configuration.ResyncOnReconnect {
				err = c.backfill(ctx, handler)
				backfilled = backfilled || err == nil
			}
			if err == nil {
				err = c.watch(ctx, handler)
			}
			dropErr := c.dropSession()
			if dropErr != nil {
				c.l.WithField("error", dropErr).Debug("Could not close session cleanly")
			}
		}

		if ctx.Err() != nil {
			return nil
		}

		attempts++
		c.l.WithFields(logrus.Fields{"attempt": attempts, "delay": c.configuration.ReconnectDelay, "error": err}).Warn("Connection lost, reconnecting")
		if c.configuration.MaxReconnectAttempts > 0 && attempts >= c.configuration.MaxReconnectAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
		}

		timer := time.NewTimer(c.configuration.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Connection) backfill(ctx context.Context, handler Handler) error {
	messages, err := c.FetchHistorical(ctx, c.configuration.Since)
	if err != nil {
		return err
	}
	handler.HandleBackfill(ctx, c.account, messages)
	return nil
}

// bind derives a context that is also cancelled by Disconnect.
func (c *Connection) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-c.quit:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (c *Connection) quitting() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

func (c *Connection) own() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owned {
		return false
	}
	c.owned = true
	return true
}

func (c *Connection) release() {
	c.mu.Lock()
	c.owned = false
	c.mu.Unlock()
}

// taken from https://github.com/golang/go/wiki/SliceTricks
func partition(seqNums []uint32, partitionSize int) [][]uint32 {
	batches := make([][]uint32, 0, (len(seqNums)+partitionSize-1)/partitionSize)

	for partitionSize < len(seqNums) {
		seqNums, batches = seqNums[partitionSize:], append(batches, seqNums[0:partitionSize:partitionSize])
	}
	batches = append(batches, seqNums)

	return batches
}
