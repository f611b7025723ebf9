package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/infrastructure/audit"
	"collab-server/services/groupchat-api/internal/infrastructure/store"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

func actor() identity.Identity {
	ident := identity.New(2, "employee", "")
	org := int64(5)
	ident.OrgID = &org
	ident.Email = "eve@example.com"
	return ident
}

func runObserver(t *testing.T, st *store.MemoryAudit, level audit.PIILevel, fn func(ctx context.Context, o *audit.Observer)) {
	t.Helper()
	o := audit.NewObserver(st, audit.NewSanitizer(level, "salt"), 16, zerolog.Nop())
	ctx := platformerrors.WithRequestID(context.Background(), "req-1")
	o.Start(ctx)
	fn(ctx, o)
	o.Stop()
}

func TestObserver_WritesAuditRows(t *testing.T) {
	st := store.NewMemoryAudit()
	runObserver(t, st, audit.PIILevelFull, func(ctx context.Context, o *audit.Observer) {
		o.Observe(ctx, events.MessageSent{GroupID: 3, MessageID: 11, Actor: actor(), Sender: identity.SenderEmployee, Transport: events.TransportSocket})
		o.Observe(ctx, events.JoinDenied{GroupID: 4, Actor: actor()})
	})

	rows := st.Audits()
	require.Len(t, rows, 2)

	sent := rows[0]
	assert.Equal(t, audit.ActionMessageSent, sent.Action)
	require.NotNil(t, sent.ActorID)
	assert.Equal(t, int64(2), *sent.ActorID)
	require.NotNil(t, sent.ActorEmail)
	assert.Equal(t, "eve@example.com", *sent.ActorEmail)
	require.NotNil(t, sent.Target)
	assert.Equal(t, "group:3", *sent.Target)
	assert.Equal(t, audit.OutcomeSuccess, sent.Metadata["outcome"])
	assert.Equal(t, "req-1", sent.Metadata["requestId"])
	assert.Equal(t, int64(5), sent.Metadata["tenantId"])
	assert.Equal(t, "employee", sent.Metadata["actorRole"])
	assert.NotEmpty(t, sent.Metadata["eventId"])
	extra, ok := sent.Metadata["extra"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(11), extra["messageId"])

	denied := rows[1]
	assert.Equal(t, audit.ActionJoinDenied, denied.Action)
	assert.Equal(t, audit.OutcomeDenied, denied.Metadata["outcome"])
	assert.Equal(t, "group:4", *denied.Target)
}

func TestObserver_SkipsUnauditedEvents(t *testing.T) {
	st := store.NewMemoryAudit()
	runObserver(t, st, audit.PIILevelHashed, func(ctx context.Context, o *audit.Observer) {
		o.Observe(ctx, events.MessageRejected{GroupID: 1, Actor: actor(), Reason: events.RejectEmptyText})
		o.Observe(ctx, events.MessageRejected{GroupID: 1, Actor: actor(), Reason: events.RejectNotMember})
	})

	rows := st.Audits()
	require.Len(t, rows, 1)
	assert.Equal(t, audit.ActionSendDenied, rows[0].Action)
}

func TestObserver_HashesPII(t *testing.T) {
	st := store.NewMemoryAudit()
	runObserver(t, st, audit.PIILevelHashed, func(ctx context.Context, o *audit.Observer) {
		o.Observe(ctx, events.AuthFailed{Code: "INVALID_TOKEN", Transport: events.TransportHTTP, ClientIP: "10.1.2.3"})
		o.Observe(ctx, events.HistoryDenied{GroupID: 1, Actor: actor()})
	})

	rows := st.Audits()
	require.Len(t, rows, 2)

	authRow := rows[0]
	assert.Equal(t, audit.ActionAuthFailed, authRow.Action)
	assert.Nil(t, authRow.ActorID)
	assert.Nil(t, authRow.Target)
	extra := authRow.Metadata["extra"].(map[string]any)
	assert.Regexp(t, `^\[IP:[0-9a-f]{8}\]$`, extra["ip"])

	require.NotNil(t, rows[1].ActorEmail)
	assert.Regexp(t, `^\[EMAIL:[0-9a-f]{8}\]$`, *rows[1].ActorEmail)
}

func TestObserver_PersistenceFailureGoesToErrorLog(t *testing.T) {
	st := store.NewMemoryAudit()
	runObserver(t, st, audit.PIILevelFull, func(ctx context.Context, o *audit.Observer) {
		o.Observe(ctx, events.PersistenceFailed{Operation: "message_create", GroupID: 9, Actor: actor(), Err: errors.New("deadlock detected")})
	})

	assert.Empty(t, st.Audits())
	rows := st.Errors()
	require.Len(t, rows, 1)
	assert.Equal(t, audit.EventTypePersistenceError, rows[0].EventType)
	assert.Equal(t, audit.SeverityHigh, rows[0].Severity)
	require.NotNil(t, rows[0].UserID)
	assert.Equal(t, int64(2), *rows[0].UserID)
	require.NotNil(t, rows[0].TenantID)
	assert.Equal(t, int64(5), *rows[0].TenantID)
	assert.Equal(t, "deadlock detected", rows[0].Payload["error"])
	assert.Equal(t, "req-1", rows[0].Payload["requestId"])
}

func TestObserver_FallsBackToErrorLog(t *testing.T) {
	st := store.NewMemoryAudit()
	st.FailAudit = errors.New("audit_log is read-only")

	runObserver(t, st, audit.PIILevelFull, func(ctx context.Context, o *audit.Observer) {
		o.Observe(ctx, events.GroupCreated{GroupID: 3, ProjectID: 8, OrgID: 5, Actor: actor()})
	})

	rows := st.Errors()
	require.Len(t, rows, 1)
	assert.Equal(t, audit.EventTypeAuditLogError, rows[0].EventType)
	assert.Contains(t, rows[0].Message, audit.ActionGroupCreated)
	attempted, ok := rows[0].Payload["attemptedAudit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, audit.ActionGroupCreated, attempted["action"])
}

func TestObserver_BothWritesFailing(t *testing.T) {
	st := store.NewMemoryAudit()
	st.FailAudit = errors.New("down")
	st.FailError = errors.New("down")

	runObserver(t, st, audit.PIILevelFull, func(ctx context.Context, o *audit.Observer) {
		o.Observe(ctx, events.MemberAdded{GroupID: 1, Actor: actor()})
	})
	assert.Empty(t, st.Audits())
	assert.Empty(t, st.Errors())
}

func TestObserver_DropsAfterStop(t *testing.T) {
	st := store.NewMemoryAudit()
	o := audit.NewObserver(st, nil, 4, zerolog.Nop())
	o.Start(context.Background())
	o.Stop()
	o.Stop()

	o.Observe(context.Background(), events.JoinDenied{GroupID: 1, Actor: actor()})
	assert.Empty(t, st.Audits())
}
