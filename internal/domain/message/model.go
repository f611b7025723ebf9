package message

import (
	"encoding/json"
	"time"

	"collab-server/services/groupchat-api/internal/domain/identity"
)

// Page sizes.
const (
	DefaultLimit = 50
	MaxLimit     = 200
	BacklogSize  = 100
)

// Message is an immutable chat message. Within a group, messages are totally
// ordered by (CreatedAt, ID).
type Message struct {
	ID         int64
	GroupID    int64
	SenderID   int64
	SenderType identity.SenderType
	Text       string
	Meta       json.RawMessage
	CreatedAt  time.Time
}

// Position returns the ordering key of the message.
func (m Message) Position() Position {
	return Position{CreatedAt: m.CreatedAt, ID: m.ID}
}

// Position is a point in a group's (created_at, id) order.
type Position struct {
	CreatedAt time.Time
	ID        int64
}

// Before reports whether p sorts strictly before other.
func (p Position) Before(other Position) bool {
	if p.CreatedAt.Equal(other.CreatedAt) {
		return p.ID < other.ID
	}
	return p.CreatedAt.Before(other.CreatedAt)
}

// View is a message enriched with its sender's display name. It is the
// payload of new_message, group_messages and the history endpoints.
type View struct {
	ID         int64               `json:"id"`
	GroupID    int64               `json:"groupId"`
	SenderID   int64               `json:"senderId"`
	SenderType identity.SenderType `json:"senderType"`
	SenderName string              `json:"senderName"`
	Text       string              `json:"text"`
	Meta       json.RawMessage     `json:"meta"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// NewView enriches a message with a sender name.
func NewView(m Message, senderName string) View {
	return View{
		ID:         m.ID,
		GroupID:    m.GroupID,
		SenderID:   m.SenderID,
		SenderType: m.SenderType,
		SenderName: senderName,
		Text:       m.Text,
		Meta:       m.Meta,
		CreatedAt:  m.CreatedAt,
	}
}

// SendInput is a submission from either transport.
type SendInput struct {
	GroupID int64
	Text    string
	Meta    json.RawMessage
}

// HistoryQuery carries the raw pagination parameters of a history read.
type HistoryQuery struct {
	Limit  int
	Before string
}

// ClampLimit applies the default and the hard ceiling to a requested limit.
func ClampLimit(requested int) int {
	if requested <= 0 {
		return DefaultLimit
	}
	if requested > MaxLimit {
		return MaxLimit
	}
	return requested
}
