// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import (
	"strings"
	"time"
)

type Category string

const (
	Interested    = Category("Interested")
	MeetingBooked = Category("Meeting Booked")
	NotInterested = Category("Not Interested")
	Spam          = Category("Spam")
	OutOfOffice   = Category("Out of Office")
	Unclassified  = Category("Unclassified")
)

// Categories lists every category a classifier may return, the fallback last.
var Categories = []Category{
	Interested,
	MeetingBooked,
	NotInterested,
	Spam,
	OutOfOffice,
	Unclassified,
}

// ParseCategory matches a label case-insensitively against the known categories.
func ParseCategory(label string) (Category, bool) {
	label = strings.TrimSpace(label)
	for _, c := range Categories {
		if strings.EqualFold(string(c), label) {
			return c, true
		}
	}

	return Unclassified, false
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Message is one observed occurrence of a mail item. Observing the same item twice
// (e.g. after a reconnect) produces two Messages with different IDs.
type Message struct {
	ID        string
	AccountID string
	MessageID string

	From    string
	To      []string
	Cc      []string
	Subject string
	Text    string
	HTML    string
	Date    time.Time
	Folder  string

	// SeqNum is only meaningful inside the session that produced it
	SeqNum uint32
	UID    uint32

	Category    Category
	Read        bool
	Attachments []Attachment
	IngestedAt  time.Time

	// Raw is kept in memory for the spam check and is never persisted
	Raw []byte
}

type ClassificationResult struct {
	Category   Category
	Confidence float64
	Rationale  string
}

// UnclassifiedResult is returned instead of an error whenever classification fails.
func UnclassifiedResult(rationale string) ClassificationResult {
	return ClassificationResult{
		Category:   Unclassified,
		Confidence: 0,
		Rationale:  rationale,
	}
}
