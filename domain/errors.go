// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import (
	"errors"
	"fmt"
)

// ConnectionError is transient, the connection is retried after a backoff.
type ConnectionError struct {
	AccountID string
	Op        string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error on account %s during %s: %v", e.AccountID, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ParseError affects a single message which is skipped.
type ParseError struct {
	SeqNum uint32
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse message %d: %v", e.SeqNum, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ClassificationError never leaves the orchestrator, it degrades to Unclassified.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("could not %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message %s not found", e.ID)
}

func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
