// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/persistence/migrations"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

const upsertMessage = `INSERT OR REPLACE INTO messages
	(id, account_id, message_id, sender, recipients, cc, subject, text, html, date, folder, seqnum, uid, category, read, attachments, ingested_at)
	VALUES
	(:id, :account_id, :message_id, :sender, :recipients, :cc, :subject, :text, :html, :date, :folder, :seqnum, :uid, :category, :read, :attachments, :ingested_at)`

const selectMessage = `SELECT id, account_id, message_id, sender, recipients, cc, subject, text, html, date, folder, seqnum, uid, category, read, attachments, ingested_at
	FROM messages WHERE id = ?`

// Persistence stores messages in sqlite. It is safe for concurrent use, sqlite
// serializes the writes on the single connection.
type Persistence struct {
	db *sqlx.DB
	l  *logrus.Logger
}

func NewPersistence(datasource string) (*Persistence, error) {
	db, err := sqlx.Connect("sqlite3", datasource)
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := log.Logger(log.LOG_PERSISTENCE)
	l.WithField("file", datasource).Info("Connected")

	_, err = db.Exec(`PRAGMA journal_mode=WAL`)
	if err != nil {
		return nil, fmt.Errorf("could not set journal mode: %w", err)
	}
	_, err = db.Exec(`PRAGMA synchronous=normal`)
	if err != nil {
		return nil, fmt.Errorf("could not set synchronous mode: %w", err)
	}

	appliedMigrations, err := migrate.Exec(db.DB, "sqlite3", migrations.Source(), migrate.Up)
	if err != nil {
		return nil, fmt.Errorf("could not migrate to newest version: %w", err)
	}

	l.WithField("migrations", appliedMigrations).Debug("Executed migrations")

	return &Persistence{
		db: db,
		l:  l,
	}, nil
}

func (p *Persistence) Close() error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	p.l.Info("Disconnected")
	return nil
}

type dbMessage struct {
	Id          string    `db:"id"`
	AccountId   string    `db:"account_id"`
	MessageId   string    `db:"message_id"`
	Sender      string    `db:"sender"`
	Recipients  string    `db:"recipients"`
	Cc          string    `db:"cc"`
	Subject     string    `db:"subject"`
	Text        string    `db:"text"`
	Html        string    `db:"html"`
	Date        time.Time `db:"date"`
	Folder      string    `db:"folder"`
	SeqNum      uint32    `db:"seqnum"`
	Uid         uint32    `db:"uid"`
	Category    string    `db:"category"`
	Read        bool      `db:"read"`
	Attachments string    `db:"attachments"`
	IngestedAt  time.Time `db:"ingested_at"`
}

func toRow(m *domain.Message) (*dbMessage, error) {
	recipients, err := marshalList(m.To)
	if err != nil {
		return nil, err
	}
	cc, err := marshalList(m.Cc)
	if err != nil {
		return nil, err
	}
	attachments := m.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	attachmentsJson, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("could not serialize attachments: %w", err)
	}

	return &dbMessage{
		Id:          m.ID,
		AccountId:   m.AccountID,
		MessageId:   m.MessageID,
		Sender:      m.From,
		Recipients:  recipients,
		Cc:          cc,
		Subject:     m.Subject,
		Text:        m.Text,
		Html:        m.HTML,
		Date:        m.Date.UTC(),
		Folder:      m.Folder,
		SeqNum:      m.SeqNum,
		Uid:         m.UID,
		Category:    string(m.Category),
		Read:        m.Read,
		Attachments: string(attachmentsJson),
		IngestedAt:  m.IngestedAt.UTC(),
	}, nil
}

func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("could not serialize address list: %w", err)
	}
	return string(b), nil
}

func (row *dbMessage) toMessage() (*domain.Message, error) {
	m := &domain.Message{
		ID:         row.Id,
		AccountID:  row.AccountId,
		MessageID:  row.MessageId,
		From:       row.Sender,
		Subject:    row.Subject,
		Text:       row.Text,
		HTML:       row.Html,
		Date:       row.Date.UTC(),
		Folder:     row.Folder,
		SeqNum:     row.SeqNum,
		UID:        row.Uid,
		Category:   domain.Category(row.Category),
		Read:       row.Read,
		IngestedAt: row.IngestedAt.UTC(),
	}

	err := json.Unmarshal([]byte(row.Recipients), &m.To)
	if err != nil {
		return nil, fmt.Errorf("could not deserialize recipients: %w", err)
	}
	err = json.Unmarshal([]byte(row.Cc), &m.Cc)
	if err != nil {
		return nil, fmt.Errorf("could not deserialize cc: %w", err)
	}
	err = json.Unmarshal([]byte(row.Attachments), &m.Attachments)
	if err != nil {
		return nil, fmt.Errorf("could not deserialize attachments: %w", err)
	}

	return m, nil
}

func (p *Persistence) CreateOrReplace(ctx context.Context, message *domain.Message) error {
	row, err := toRow(message)
	if err != nil {
		return &domain.PersistenceError{Op: "save message", Err: err}
	}

	_, err = p.db.NamedExecContext(ctx, upsertMessage, row)
	if err != nil {
		return &domain.PersistenceError{Op: "save message", Err: err}
	}

	p.l.WithFields(logrus.Fields{"id": message.ID, "category": message.Category}).Debug("Persisted message")
	return nil
}

// BulkCreateOrReplace saves all messages in one transaction, either all or none are stored.
func (p *Persistence) BulkCreateOrReplace(ctx context.Context, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "save messages", Err: fmt.Errorf("could not start transaction: %w", err)}
	}

	stmt, err := tx.PrepareNamedContext(ctx, upsertMessage)
	if err != nil {
		return &domain.PersistenceError{Op: "save messages", Err: txEnd(tx, fmt.Errorf("could not prepare statement: %w", err))}
	}
	defer stmt.Close()

	for _, m := range messages {
		row, err := toRow(m)
		if err != nil {
			return &domain.PersistenceError{Op: "save messages", Err: txEnd(tx, err)}
		}

		_, err = stmt.ExecContext(ctx, row)
		if err != nil {
			return &domain.PersistenceError{Op: "save messages", Err: txEnd(tx, fmt.Errorf("could not save message %s: %w", m.ID, err))}
		}
	}

	err = txEnd(tx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "save messages", Err: err}
	}

	p.l.WithField("count", len(messages)).Debug("Persisted messages")
	return nil
}

func (p *Persistence) UpdateCategory(ctx context.Context, id string, category domain.Category) error {
	result, err := p.db.ExecContext(ctx, "UPDATE messages SET category = ? WHERE id = ?", string(category), id)
	if err != nil {
		return &domain.PersistenceError{Op: "update category", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &domain.PersistenceError{Op: "update category", Err: fmt.Errorf("could not get num of affected rows: %w", err)}
	}

	if affected == 0 {
		return &domain.NotFoundError{ID: id}
	}

	p.l.WithFields(logrus.Fields{"id": id, "category": category}).Debug("Updated category")
	return nil
}

func (p *Persistence) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	row := &dbMessage{}
	err := p.db.GetContext(ctx, row, selectMessage, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "query message", Err: err}
	}

	m, err := row.toMessage()
	if err != nil {
		return nil, &domain.PersistenceError{Op: "query message", Err: err}
	}
	return m, nil
}

// CountByCategory returns the number of stored messages per category.
func (p *Persistence) CountByCategory(ctx context.Context) (map[domain.Category]int, error) {
	rows := []struct {
		Category string `db:"category"`
		Count    int    `db:"count"`
	}{}

	err := p.db.SelectContext(ctx, &rows, "SELECT category, COUNT(*) AS count FROM messages GROUP BY category")
	if err != nil {
		return nil, &domain.PersistenceError{Op: "count messages", Err: err}
	}

	counts := map[domain.Category]int{}
	for _, r := range rows {
		counts[domain.Category(r.Category)] = r.Count
	}
	return counts, nil
}

func txEnd(tx *sqlx.Tx, err error) error {
	if err == nil {
		err = tx.Commit()
		if err != nil {
			return fmt.Errorf("could not commit tx: %w", err)
		}
	} else {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			errStr := err.Error()
			return fmt.Errorf("%s, could not rollback tx: %w", errStr, rollbackErr)
		} else {
			return err
		}
	}

	return nil
}
