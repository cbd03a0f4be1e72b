package model

import (
	"strings"
	"time"
)

// Message is a chat message.  ThreadID is an opaque client-chosen grouping
// token; nothing references it.  Author and ReplyTo are only set when the
// message was read with population.
type Message struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Author    *UserRef  `json:"author,omitempty"`
	Body      string    `json:"body"`
	ThreadID  *string   `json:"threadId"`
	ReplyToID *string   `json:"replyToId"`
	ReplyTo   *Message  `json:"replyTo"`
	ImageRef  *string   `json:"imageRef,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage carries the fields accepted by the ingestion pipeline.  Body is
// a pointer so that an absent body can be told apart from an empty one.
type NewMessage struct {
	AuthorID  string
	Body      *string
	ThreadID  *string
	ReplyToID *string
	ImageRef  *string
}

// Normalize clears blank optional references so every ingestion path stores
// them as NULL.
func (m *NewMessage) Normalize() {
	m.ThreadID = nilIfBlank(m.ThreadID)
	m.ReplyToID = nilIfBlank(m.ReplyToID)
	m.ImageRef = nilIfBlank(m.ImageRef)
}

func nilIfBlank(p *string) *string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	return p
}
