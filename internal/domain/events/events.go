// Package events defines the domain events emitted by the chat core and the
// observer interface that consumes them.
package events

import (
	"context"
	"time"

	"collab-server/services/groupchat-api/internal/domain/identity"
)

// Event is a domain event.
type Event interface {
	EventName() string
}

// Observer receives domain events. Implementations must not block the caller.
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, event Event) { f(ctx, event) }

// Nop discards events.
var Nop Observer = ObserverFunc(func(context.Context, Event) {})

// Multi fans events out to several observers in order.
func Multi(observers ...Observer) Observer {
	filtered := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	return ObserverFunc(func(ctx context.Context, event Event) {
		for _, o := range filtered {
			o.Observe(ctx, event)
		}
	})
}

// Transport names where an operation came from.
type Transport string

const (
	TransportSocket Transport = "socket"
	TransportHTTP   Transport = "http"
)

// MessageSent is emitted after a message was persisted and published.
type MessageSent struct {
	GroupID   int64
	MessageID int64
	Actor     identity.Identity
	Sender    identity.SenderType
	Transport Transport
	At        time.Time
}

// RejectReason classifies why a send was rejected.
type RejectReason string

const (
	RejectEmptyText RejectReason = "EMPTY_TEXT"
	RejectNotMember RejectReason = "NOT_MEMBER"
)

// MessageRejected is emitted when validation or authorization fails.
type MessageRejected struct {
	GroupID   int64
	Actor     identity.Identity
	Reason    RejectReason
	Transport Transport
}

// JoinDenied is emitted when a live join is refused.
type JoinDenied struct {
	GroupID int64
	Actor   identity.Identity
}

// HistoryDenied is emitted when a history read is refused.
type HistoryDenied struct {
	GroupID int64
	Actor   identity.Identity
}

// PersistenceFailed is emitted when a store write or read fails.
type PersistenceFailed struct {
	Operation string
	GroupID   int64
	Actor     identity.Identity
	Err       error
}

// GroupCreated is emitted after a group was committed.
type GroupCreated struct {
	GroupID   int64
	ProjectID int64
	OrgID     int64
	Actor     identity.Identity
}

// MemberAdded is emitted after a membership was committed.
type MemberAdded struct {
	GroupID    int64
	EmployeeID *int64
	CustomerID *int64
	Actor      identity.Identity
}

// AuthFailed is emitted when a credential is missing or invalid.
type AuthFailed struct {
	Code      string
	Transport Transport
	ClientIP  string
}

func (MessageSent) EventName() string       { return "message_sent" }
func (MessageRejected) EventName() string   { return "message_rejected" }
func (JoinDenied) EventName() string        { return "join_denied" }
func (HistoryDenied) EventName() string     { return "history_denied" }
func (PersistenceFailed) EventName() string { return "persistence_failed" }
func (GroupCreated) EventName() string      { return "group_created" }
func (MemberAdded) EventName() string       { return "member_added" }
func (AuthFailed) EventName() string        { return "auth_failed" }
