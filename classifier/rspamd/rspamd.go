// SPDX-License-Identifier: GPL-3.0-or-later
package rspamd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
)

const RspamdTimeout = 20 * time.Second

// gathered via trial&error and the source-code of various rspamd modules. These are caused by misconfiguration on the
// sender's side and not by the dns server being slow to respond for example.
var okFailSymbols = regexp.MustCompile(`^(R_DKIM_PERMFAIL|DMARC_POLICY_SOFTFAIL|R_SPF_SOFTFAIL|DMARC_DNSFAIL|R_SPF_FAIL)$`)

type Rspamd struct {
	client   *http.Client
	host     string
	password string
}

func NewRspamd(ctx context.Context, host, password string) (*Rspamd, error) {
	rspamd := &Rspamd{
		client: &http.Client{
			Timeout: RspamdTimeout,
		},
		host:     strings.TrimSuffix(host, "/"),
		password: password,
	}
	err := rspamd.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not ping rspamd: %w", err)
	}

	return rspamd, nil
}

func (rs *Rspamd) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rs.host+"/ping", nil)
	if err != nil {
		return fmt.Errorf("could not create ping request: %w", err)
	}

	resp, err := rs.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not ping rspamd: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from rspamd, expected 200", resp.StatusCode)
	}

	return nil
}

type checkResponse struct {
	IsSkipped bool    `json:"is_skipped"`
	Score     float64 `json:"score"`
	Symbols   map[string]struct {
		Name  string
		Score float64
	} `json:"symbols"`
	Action string `json:"action"`
}

// Check treats every action except "no action" as spam.
func (rs *Rspamd) Check(ctx context.Context, rawMail []byte) (*domain.SpamVerdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rs.host+"/checkv2", bytes.NewReader(rawMail))
	if err != nil {
		return nil, fmt.Errorf("could not create check request: %w", err)
	}
	req.Header.Set("Password", rs.password)

	resp, err := rs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request to rspamd: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from rspamd, expected 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read rspamd response: %w", err)
	}

	checkResponse := &checkResponse{}
	err = json.Unmarshal(body, checkResponse)
	if err != nil {
		return nil, fmt.Errorf("could not deserialize rspamd response: %w", err)
	}

	if checkResponse.IsSkipped {
		return &domain.SpamVerdict{}, nil
	}

	if len(checkResponse.Symbols) == 0 {
		return nil, fmt.Errorf("could not find any symbols in rspamd response")
	}

	for symbol := range checkResponse.Symbols {
		if strings.HasSuffix(symbol, "FAIL") && !okFailSymbols.MatchString(symbol) {
			return nil, fmt.Errorf("unexpected FAIL symbol %s in rspamd response", symbol)
		}
	}

	return &domain.SpamVerdict{
		IsSpam: checkResponse.Action != "no action",
		Score:  checkResponse.Score,
	}, nil
}
