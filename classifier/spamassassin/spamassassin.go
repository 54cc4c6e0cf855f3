// SPDX-License-Identifier: GPL-3.0-or-later
package spamassassin

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/CrawX/go-imap-triage/domain"

	"github.com/teamwork/spamc"
)

const SpamAssassinTimeout = 20 * time.Second

// SpamAssassin checks mails against a spamd instance.
type SpamAssassin struct {
	client *spamc.Client
}

func NewSpamAssassin(ctx context.Context, host string) (*SpamAssassin, error) {
	client := spamc.New(host, &net.Dialer{
		Timeout: SpamAssassinTimeout,
	})
	err := client.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not ping SpamAssassin: %w", err)
	}

	return &SpamAssassin{client: client}, nil
}

func (sa *SpamAssassin) Check(ctx context.Context, rawMail []byte) (*domain.SpamVerdict, error) {
	out, err := sa.client.Process(ctx, bytes.NewReader(rawMail), nil)
	if err != nil {
		return nil, fmt.Errorf("could not check SpamAssassin: %w", err)
	}

	err = out.Message.Close()
	if err != nil {
		return nil, fmt.Errorf("could not close response: %w", err)
	}

	return &domain.SpamVerdict{
		IsSpam: out.IsSpam,
		Score:  out.Score,
	}, nil
}
