// SPDX-License-Identifier: GPL-3.0-or-later
package supervisor

import (
	"testing"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/stretchr/testify/assert"
)

func TestQueue_KeepsOrder(t *testing.T) {
	q := newQueue[*domain.Message]()
	for _, s := range []string{"a", "b", "c"} {
		assert.True(t, q.push(&domain.Message{Subject: s}))
	}
	assert.Equal(t, 3, q.len())

	for _, s := range []string{"a", "b", "c"} {
		m, ok := q.pop()
		assert.True(t, ok)
		assert.Equal(t, s, m.Subject)
	}
	assert.Equal(t, 0, q.len())
}

func TestQueue_PopWaitsForPush(t *testing.T) {
	q := newQueue[*domain.Message]()
	popped := make(chan *domain.Message)
	go func() {
		m, _ := q.pop()
		popped <- m
	}()

	select {
	case <-popped:
		t.Fatal("pop returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	q.push(&domain.Message{Subject: "late"})
	select {
	case m := <-popped:
		assert.Equal(t, "late", m.Subject)
	case <-time.After(5 * time.Second):
		t.Fatal("pop did not return after push")
	}
}

func TestQueue_Close(t *testing.T) {
	q := newQueue[*domain.Message]()
	q.push(&domain.Message{})
	q.push(&domain.Message{})

	assert.Equal(t, 2, q.close())
	assert.Equal(t, 0, q.close())
	assert.False(t, q.push(&domain.Message{}))

	m, ok := q.pop()
	assert.Nil(t, m)
	assert.False(t, ok)
}
