// SPDX-License-Identifier: GPL-3.0-or-later

//go:generate mockgen -destination=mocks/persistence.go -package=mocks . Persistence
package domain

import "context"

// Persistence stores finalized messages. Implementations must be safe for concurrent use.
// CreateOrReplace is idempotent on Message.ID.
type Persistence interface {
	CreateOrReplace(ctx context.Context, message *Message) error
	BulkCreateOrReplace(ctx context.Context, messages []*Message) error
	UpdateCategory(ctx context.Context, id string, category Category) error
	GetByID(ctx context.Context, id string) (*Message, error)
}
