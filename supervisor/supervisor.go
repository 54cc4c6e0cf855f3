// SPDX-License-Identifier: GPL-3.0-or-later
package supervisor

//go:generate mockgen -destination=mocks_test.go -package=supervisor . Pipeline
import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/mail"
	"github.com/CrawX/go-imap-triage/mailbox"

	"github.com/sirupsen/logrus"
)

var ErrShutdown = errors.New("supervisor is shut down")

// Pipeline finalizes messages. Both methods set the category on the passed messages.
type Pipeline interface {
	ProcessBackfill(ctx context.Context, messages []*domain.Message) error
	ProcessIncoming(ctx context.Context, message *domain.Message) error
}

type Connection interface {
	Run(ctx context.Context, handler mailbox.Handler) error
	Disconnect() error
	State() domain.ConnectionState
	RequestMove(uid uint32, folder string)
}

type ConnectionFactory func(account *domain.Account) (Connection, error)

// MailboxConnections creates a mailbox.Connection per account.
func MailboxConnections(dialer domain.SessionDialer, configFunc ...mailbox.ConfigFunc) ConnectionFactory {
	return func(account *domain.Account) (Connection, error) {
		return mailbox.NewConnection(account, dialer, configFunc...)
	}
}

type Supervisor struct {
	pipeline      Pipeline
	newConnection ConnectionFactory
	configuration *configuration

	mu       sync.Mutex
	workers  map[string]*worker
	order    []string
	cancels  []context.CancelFunc
	shutdown bool
	wg       sync.WaitGroup

	l *logrus.Logger
}

func NewSupervisor(pipeline Pipeline, newConnection ConnectionFactory, configFunc ...ConfigFunc) (*Supervisor, error) {
	config := &configuration{}
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Supervisor{
		pipeline:      pipeline,
		newConnection: newConnection,
		configuration: config,
		workers:       map[string]*worker{},
		l:             log.Logger(log.LOG_SUPERVISOR),
	}, nil
}

// InitializeAll starts a connection and a queue consumer for every account. Accounts
// that cannot be started are logged and skipped.
func (s *Supervisor) InitializeAll(ctx context.Context, accounts []*domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrShutdown
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancels = append(s.cancels, cancel)
	// in-flight work outlives shutdown, ShutdownAll waits for it
	workCtx := context.WithoutCancel(ctx)

	started := 0
	for _, account := range accounts {
		accountLogger := s.l.WithFields(logrus.Fields{"account": account.ID, "server": account.Host})
		if _, ok := s.workers[account.ID]; ok {
			accountLogger.Error("Duplicate account id, skipping")
			continue
		}

		conn, err := s.newConnection(account)
		if err != nil {
			accountLogger.WithField("error", err).Error("Could not create connection, skipping account")
			continue
		}

		w := &worker{
			account:    account,
			connection: conn,
			queue:      newQueue[*task](),
			stopped:    make(chan struct{}),
			supervisor: s,
			workCtx:    workCtx,
			l:          accountLogger,
		}
		s.workers[account.ID] = w
		s.order = append(s.order, account.ID)

		s.wg.Add(2)
		go w.run(runCtx)
		go w.consume()
		started++
	}

	s.l.WithFields(logrus.Fields{"accounts": len(accounts), "started": started}).Info("Initialized accounts")
	return nil
}

// ShutdownAll disconnects every account and waits until in-flight messages are finished
// or ctx is done. Queued messages not yet picked up are discarded. Safe to call twice.
func (s *Supervisor) ShutdownAll(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	workers := make([]*worker, 0, len(s.order))
	for _, id := range s.order {
		workers = append(workers, s.workers[id])
	}
	cancels := s.cancels
	s.mu.Unlock()

	errs := []error{}
	for _, w := range workers {
		err := w.connection.Disconnect()
		if err != nil {
			w.l.WithField("error", err).Warn("Could not disconnect")
			errs = append(errs, fmt.Errorf("could not disconnect account %s: %w", w.account.ID, err))
		}

		dropped := w.queue.close()
		if dropped > 0 {
			w.l.WithField("dropped", dropped).Warn("Discarding queued work")
		}
	}
	for _, cancel := range cancels {
		cancel()
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.l.Info("All accounts shut down")
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("could not wait for in-flight work: %w", ctx.Err()))
	}

	return errors.Join(errs...)
}

// States reports the connection state per account id.
func (s *Supervisor) States() map[string]domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]domain.ConnectionState, len(s.workers))
	for id, w := range s.workers {
		states[id] = w.connection.State()
	}
	return states
}

// task is either one new message or a whole backfill. done is closed once a backfill
// went through the pipeline.
type task struct {
	message  *domain.Message
	backfill []*domain.Message
	done     chan struct{}
}

// worker owns the queue between one account's connection and the pipeline. Only the
// consume goroutine calls the pipeline, backfills included.
type worker struct {
	account    *domain.Account
	connection Connection
	queue      *queue[*task]
	stopped    chan struct{}
	supervisor *Supervisor
	workCtx    context.Context

	l *logrus.Entry
}

func (w *worker) run(ctx context.Context) {
	defer w.supervisor.wg.Done()

	err := w.connection.Run(ctx, w)
	if err != nil {
		w.l.WithField("error", err).Error("Account stopped")
		return
	}
	w.l.Debug("Account stopped")
}

func (w *worker) consume() {
	defer w.supervisor.wg.Done()
	defer close(w.stopped)

	for {
		t, ok := w.queue.pop()
		if !ok {
			return
		}

		if t.done != nil {
			w.processBackfill(t.backfill)
			close(t.done)
			continue
		}
		w.processIncoming(t.message)
	}
}

func (w *worker) processIncoming(msg *domain.Message) {
	err := w.supervisor.pipeline.ProcessIncoming(w.workCtx, msg)
	if err != nil {
		w.l.WithFields(logrus.Fields{"subject": mail.ShortSubject(msg.Subject), "error": err}).Error("Could not process mail")
	}
	w.moveSpam(msg)
}

func (w *worker) processBackfill(messages []*domain.Message) {
	if len(messages) == 0 {
		w.l.Info("No historical mails to process")
	}

	err := w.supervisor.pipeline.ProcessBackfill(w.workCtx, messages)
	if err != nil {
		w.l.WithFields(logrus.Fields{"mails": len(messages), "error": err}).Error("Could not process historical mails")
	}

	for _, msg := range messages {
		w.moveSpam(msg)
	}
}

// HandleBackfill queues the backfill behind the messages of a previous session and
// waits until it was processed or the worker stopped.
func (w *worker) HandleBackfill(_ context.Context, _ *domain.Account, messages []*domain.Message) {
	t := &task{backfill: messages, done: make(chan struct{})}
	if !w.queue.push(t) {
		w.l.WithField("mails", len(messages)).Debug("Shutting down, dropping historical mails")
		return
	}

	select {
	case <-t.done:
	case <-w.stopped:
	}
}

func (w *worker) HandleNew(_ context.Context, message *domain.Message) {
	if !w.queue.push(&task{message: message}) {
		w.l.WithField("subject", mail.ShortSubject(message.Subject)).Debug("Shutting down, dropping mail")
	}
}

func (w *worker) moveSpam(msg *domain.Message) {
	config := w.supervisor.configuration
	if len(config.SpamFolder) == 0 || msg.Category != domain.Spam || msg.Folder == config.SpamFolder {
		return
	}

	mailLogger := w.l.WithFields(logrus.Fields{"subject": mail.ShortSubject(msg.Subject), "destination": config.SpamFolder})
	if config.DryRun {
		mailLogger.Info("Not moving spam mail due to dry-run")
		return
	}

	mailLogger.Debug("Requesting spam move")
	w.connection.RequestMove(msg.UID, config.SpamFolder)
}
