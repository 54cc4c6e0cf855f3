// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

//go:generate mockgen -destination=relocate_mocks_test.go -package=imapconnection -source relocate.go
import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap"
)

// Moving a mail either uses MOVE or falls back to COPY followed by a delete. Deleting uses
// UID EXPUNGE (UIDPLUS) when available, otherwise flag&expunge which is only safe when no
// other mail in the folder carries \Deleted.

type deleter interface {
	delete(uids []uint32) error
	deleteReady() (error, error)
}

type mover interface {
	move(uids []uint32, folder string) error
	moveReady() (error, error)
}

type deletedFlagger interface {
	flagDeleted(uids []uint32) (*imap.SeqSet, error)
}

type deletedFlaggerAndUidExpunger interface {
	deletedFlagger
	uidExpunge(seqSet *imap.SeqSet, ch chan uint32) error
}

type deleteFlaggerAndExpunger interface {
	deletedFlagger
	expunge(ch chan uint32) error
	uidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
}

type moveClient interface {
	UidMove(seqset *imap.SeqSet, dest string) error
}

type copyAndDeleteMoveClient interface {
	deleter
	uidCopy(seqset *imap.SeqSet, dest string) error
}

var ErrDeletedFlagPresent = errors.New("folder has previous items with delete flag set")

type uidPlusDeleter struct {
	imapConn deletedFlaggerAndUidExpunger
}

func (u *uidPlusDeleter) delete(uids []uint32) error {
	seqset, err := u.imapConn.flagDeleted(uids)
	if err != nil {
		return fmt.Errorf("could not flag items as deleted: %w", err)
	}

	return collectExpunged(len(uids), func(ch chan uint32) error {
		return u.imapConn.uidExpunge(seqset, ch)
	})
}

func (u *uidPlusDeleter) deleteReady() (error, error) {
	// UIDPLUS deletes by uid and is always ready
	return nil, nil
}

type compatibilityDeleter struct {
	imapConn deleteFlaggerAndExpunger
}

func (c *compatibilityDeleter) delete(uids []uint32) error {
	notDeleteReadyReason, err := c.deleteReady()
	if err != nil {
		return fmt.Errorf("could not check for delete readiness: %w", err)
	}

	if notDeleteReadyReason != nil {
		return fmt.Errorf("folder is not ready for delete: %w", notDeleteReadyReason)
	}

	_, err = c.imapConn.flagDeleted(uids)
	if err != nil {
		return fmt.Errorf("could not set deleted flag: %w", err)
	}

	return collectExpunged(len(uids), c.imapConn.expunge)
}

func (c *compatibilityDeleter) deleteReady() (error, error) {
	// EXPUNGE removes everything flagged, so nothing else may carry the flag
	criteria := imap.NewSearchCriteria()
	criteria.WithFlags = []string{imap.DeletedFlag}
	ids, err := c.imapConn.uidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("could not search for deleted in folder: %w", err)
	}

	if len(ids) > 0 {
		return ErrDeletedFlagPresent, nil
	}
	return nil, nil
}

func collectExpunged(expected int, expunge func(ch chan uint32) error) error {
	out := make(chan uint32)
	done := make(chan error, 1)
	go func() {
		done <- expunge(out)
	}()

	expunged := 0
	for range out {
		expunged++
	}

	err := <-done
	if err != nil {
		return fmt.Errorf("could not expunge mails: %w", err)
	}

	if expunged != expected {
		return fmt.Errorf("unexpected number of expunges, expected %d got %d", expected, expunged)
	}

	return nil
}

type moveMover struct {
	moveClient moveClient
}

func (m *moveMover) move(uids []uint32, folder string) error {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)
	return m.moveClient.UidMove(seqset, folder)
}

func (m *moveMover) moveReady() (error, error) {
	return nil, nil
}

type compatibilityMover struct {
	imapConn copyAndDeleteMoveClient
}

func (c *compatibilityMover) move(uids []uint32, folder string) error {
	notDeleteReadyReason, err := c.moveReady()
	if err != nil {
		return fmt.Errorf("could not check for delete readiness to move: %w", err)
	}

	if notDeleteReadyReason != nil {
		return fmt.Errorf("folder is not ready for delete, cannot move (copy&delete): %w", notDeleteReadyReason)
	}

	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)
	err = c.imapConn.uidCopy(seqset, folder)
	if err != nil {
		return fmt.Errorf("could not copy mails: %w", err)
	}

	err = c.imapConn.delete(uids)
	if err != nil {
		return fmt.Errorf("could not delete copied mails: %w", err)
	}

	return nil
}

func (c *compatibilityMover) moveReady() (error, error) {
	return c.imapConn.deleteReady()
}
