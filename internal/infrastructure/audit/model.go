// Package audit records chat activity to the platform's audit and error logs.
package audit

import (
	"context"
	"time"
)

// Actions written to audit_log.
const (
	ActionMessageSent   = "CHAT_MESSAGE_SENT"
	ActionGroupCreated  = "CHAT_GROUP_CREATED"
	ActionMemberAdded   = "CHAT_MEMBER_ADDED"
	ActionJoinDenied    = "CHAT_JOIN_DENIED"
	ActionHistoryDenied = "CHAT_HISTORY_DENIED"
	ActionSendDenied    = "CHAT_SEND_DENIED"
	ActionAuthFailed    = "CHAT_AUTH_FAILED"
)

// Outcomes recorded in audit metadata.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeDenied  = "DENIED"
	OutcomeFailure = "FAILURE"
)

// Error log event types.
const (
	EventTypePersistenceError = "chat_persistence_error"
	EventTypeAuditLogError    = "audit_log_error"
)

// SeverityHigh is the severity of every error row written by this service.
const SeverityHigh = "HIGH"

// Entry is one audit_log row.
type Entry struct {
	ActorID    *int64
	ActorEmail *string
	Action     string
	Target     *string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// ErrorEntry is one error_log row.
type ErrorEntry struct {
	EventType string
	Severity  string
	Message   string
	TenantID  *int64
	UserID    *int64
	Payload   map[string]any
	CreatedAt time.Time
}

// Store persists audit and error rows.
type Store interface {
	InsertAudit(ctx context.Context, entry *Entry) error
	InsertError(ctx context.Context, entry *ErrorEntry) error
	CountAudit(ctx context.Context) (int64, error)
	// DeleteOldestAudit removes up to n rows in (created_at, id) order and
	// returns how many were removed.
	DeleteOldestAudit(ctx context.Context, n int) (int64, error)
}
