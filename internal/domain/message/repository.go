package message

import (
	"context"
	"time"
)

// PageQuery selects up to Limit messages of a group, newest first.
// Before and BeforeID are exclusive upper bounds; at most one is set.
type PageQuery struct {
	GroupID  int64
	Limit    int
	Before   *Position
	BeforeID *int64
}

// Repository persists messages.
type Repository interface {
	// Create inserts the message and fills in ID and CreatedAt.
	Create(ctx context.Context, m *Message) error

	// Get returns a message by id, or nil when it does not exist.
	Get(ctx context.Context, id int64) (*Message, error)

	// ListPage returns messages ordered by (created_at, id) descending.
	ListPage(ctx context.Context, q PageQuery) ([]Message, error)
}

// GroupStamper moves a group's last-message timestamp forward. It must never
// move it backwards.
type GroupStamper interface {
	StampLastMessage(ctx context.Context, groupID int64, at time.Time) error
}

// Publisher fans a persisted message out to live connections.
type Publisher interface {
	PublishMessage(ctx context.Context, view View)
}

// TextSanitizer rewrites message text before validation.
type TextSanitizer interface {
	Sanitize(text string) string
}
