// SPDX-License-Identifier: GPL-3.0-or-later
package mail

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/CrawX/go-imap-triage/domain"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

const seenFlag = `\Seen`

var ErrEmptyMail = errors.New("mail body is empty")

var (
	invisibleBlocks = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	lineBreakTags   = regexp.MustCompile(`(?i)<(br|/p|/div|/tr|/li|/h[1-6])[^>]*>`)
	anyTag          = regexp.MustCompile(`(?s)<[^>]*>`)
	blankLines      = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)
	spaces          = regexp.MustCompile(`[ \t]+`)
)

// Parse turns a raw mail fetched from a folder into a Message with a freshly generated ID.
// Errors are always of type *domain.ParseError.
func Parse(raw *domain.RawMail, accountID, folder string) (*domain.Message, error) {
	if raw == nil || len(raw.Body) == 0 {
		seqNum := uint32(0)
		if raw != nil {
			seqNum = raw.SeqNum
		}
		return nil, &domain.ParseError{SeqNum: seqNum, Err: ErrEmptyMail}
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw.Body))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, &domain.ParseError{SeqNum: raw.SeqNum, Err: fmt.Errorf("could not read mail: %w", err)}
	}
	defer mr.Close()

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		Folder:     folder,
		SeqNum:     raw.SeqNum,
		UID:        raw.Uid,
		Read:       hasFlag(raw.Flags, seenFlag),
		IngestedAt: now,
		Raw:        raw.Body,
	}

	header := mr.Header
	msg.Subject, err = header.Subject()
	if err != nil {
		msg.Subject = header.Get("Subject")
	}
	msg.MessageID, err = header.MessageID()
	if err != nil {
		msg.MessageID = strings.Trim(header.Get("Message-Id"), "<> ")
	}
	msg.Date, err = header.Date()
	if err != nil || msg.Date.IsZero() {
		msg.Date = now
	}

	from := addresses(header, "From")
	if len(from) > 0 {
		msg.From = from[0]
	}
	msg.To = addresses(header, "To")
	msg.Cc = addresses(header, "Cc")

	err = readParts(mr, msg)
	if err != nil {
		return nil, &domain.ParseError{SeqNum: raw.SeqNum, Err: err}
	}

	if len(strings.TrimSpace(msg.Text)) == 0 && len(msg.HTML) > 0 {
		msg.Text = HTMLToText(msg.HTML)
	}

	return msg, nil
}

func readParts(mr *mail.Reader, msg *domain.Message) error {
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return fmt.Errorf("could not read mail part: %w", err)
		}
		if p == nil {
			return nil
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if !strings.HasPrefix(contentType, "text/") && len(contentType) > 0 {
				continue
			}

			body, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("could not read inline part: %w", err)
			}

			switch {
			case contentType == "text/html":
				if len(msg.HTML) == 0 {
					msg.HTML = string(body)
				}
			case contentType == "text/plain" || len(contentType) == 0:
				if len(msg.Text) == 0 {
					msg.Text = string(body)
				}
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			size, err := io.Copy(io.Discard, p.Body)
			if err != nil {
				return fmt.Errorf("could not read attachment %s: %w", filename, err)
			}

			msg.Attachments = append(msg.Attachments, domain.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        size,
			})
		}
	}
}

func addresses(header mail.Header, key string) []string {
	list, err := header.AddressList(key)
	if err != nil {
		raw := strings.TrimSpace(header.Get(key))
		if len(raw) == 0 {
			return nil
		}
		return []string{raw}
	}

	result := make([]string, 0, len(list))
	for _, a := range list {
		result = append(result, a.Address)
	}
	return result
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// HTMLToText is a crude tag stripper, good enough as classifier input.
func HTMLToText(body string) string {
	text := invisibleBlocks.ReplaceAllString(body, "")
	text = lineBreakTags.ReplaceAllString(text, "\n")
	text = anyTag.ReplaceAllString(text, "")
	text = strings.ReplaceAll(html.UnescapeString(text), "\u00a0", " ")
	text = spaces.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

func ShortSubject(subject string) string {
	return Excerpt(subject, 30)
}

// Excerpt cuts s after max runes and marks the cut with "...".
func Excerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}
