// SPDX-License-Identifier: GPL-3.0-or-later

//go:generate mockgen -destination=mocks/notifier.go -package=mocks . Notifier
package domain

import "context"

type Notifier interface {
	Notify(ctx context.Context, message *Message) error
}
