package audit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/infrastructure/metrics"
	"collab-server/services/groupchat-api/internal/utils/idgen"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

const writeTimeout = 5 * time.Second

type record struct {
	event     events.Event
	requestID string
	at        time.Time
}

// Observer turns domain events into audit_log and error_log rows. Events are
// queued and written by a single background worker; a full queue drops the
// event.
type Observer struct {
	store     Store
	sanitizer *Sanitizer
	log       zerolog.Logger
	now       func() time.Time

	queue     chan record
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewObserver creates an observer with a queue of bufferSize events.
func NewObserver(store Store, sanitizer *Sanitizer, bufferSize int, log zerolog.Logger) *Observer {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if sanitizer == nil {
		sanitizer = NewSanitizer(PIILevelHashed, "")
	}
	return &Observer{
		store:     store,
		sanitizer: sanitizer,
		log:       log.With().Str("component", "audit-observer").Logger(),
		now:       time.Now,
		queue:     make(chan record, bufferSize),
		done:      make(chan struct{}),
	}
}

// Observe implements events.Observer. It never blocks.
func (o *Observer) Observe(ctx context.Context, event events.Event) {
	if !audited(event) {
		return
	}
	rec := record{event: event, requestID: platformerrors.RequestIDFromContext(ctx), at: o.now().UTC()}
	select {
	case <-o.done:
		metrics.AuditDropped.Inc()
		return
	default:
	}
	select {
	case o.queue <- rec:
	default:
		metrics.AuditDropped.Inc()
		o.log.Warn().Str("event", event.EventName()).Msg("audit queue full, dropping event")
	}
}

// Start begins draining the queue in background.
// Safe to call multiple times - only the first call starts the worker.
func (o *Observer) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		o.wg.Add(1)
		go o.run(ctx)
		o.log.Info().Msg("audit worker started")
	})
}

// Stop drains queued events and shuts the worker down.
// Safe to call multiple times - only the first call stops the worker.
func (o *Observer) Stop() {
	o.stopOnce.Do(func() {
		close(o.done)
		o.wg.Wait()
		o.log.Info().Msg("audit worker stopped")
	})
}

func (o *Observer) run(ctx context.Context) {
	defer o.wg.Done()
	writeCtx := context.WithoutCancel(ctx)

	for {
		select {
		case rec := <-o.queue:
			o.write(writeCtx, rec)
		case <-ctx.Done():
			o.drain(writeCtx)
			return
		case <-o.done:
			o.drain(writeCtx)
			return
		}
	}
}

func (o *Observer) drain(ctx context.Context) {
	for {
		select {
		case rec := <-o.queue:
			o.write(ctx, rec)
		default:
			return
		}
	}
}

func (o *Observer) write(ctx context.Context, rec record) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if e, ok := rec.event.(events.PersistenceFailed); ok {
		o.writeError(ctx, o.persistenceError(e, rec))
		return
	}

	entry, ok := o.entryFor(rec)
	if !ok {
		return
	}
	if err := o.store.InsertAudit(ctx, entry); err != nil {
		metrics.AuditFailures.Inc()
		o.log.Error().Err(err).Str("action", entry.Action).Msg("failed to write audit log")
		o.writeError(ctx, &ErrorEntry{
			EventType: EventTypeAuditLogError,
			Severity:  SeverityHigh,
			Message:   fmt.Sprintf("Failed to write audit log for action=%s", entry.Action),
			TenantID:  tenantOf(entry.Metadata),
			UserID:    entry.ActorID,
			Payload: map[string]any{
				"error": o.sanitizer.Text(err.Error()),
				"attemptedAudit": map[string]any{
					"actorId":  entry.ActorID,
					"action":   entry.Action,
					"target":   entry.Target,
					"metadata": entry.Metadata,
				},
			},
			CreatedAt: rec.at,
		})
	}
}

func (o *Observer) writeError(ctx context.Context, entry *ErrorEntry) {
	if err := o.store.InsertError(ctx, entry); err != nil {
		metrics.AuditFailures.Inc()
		o.log.Error().Err(err).Str("event_type", entry.EventType).Msg("failed to write error log")
	}
}

func (o *Observer) entryFor(rec record) (*Entry, bool) {
	switch e := rec.event.(type) {
	case events.MessageSent:
		return o.entry(rec, e.Actor, ActionMessageSent, OutcomeSuccess, "", "group", e.GroupID, map[string]any{
			"messageId": e.MessageID,
			"transport": string(e.Transport),
		}), true
	case events.GroupCreated:
		entry := o.entry(rec, e.Actor, ActionGroupCreated, OutcomeSuccess, "", "group", e.GroupID, map[string]any{
			"projectId": e.ProjectID,
		})
		entry.Metadata["tenantId"] = e.OrgID
		return entry, true
	case events.MemberAdded:
		extra := map[string]any{}
		if e.EmployeeID != nil {
			extra["employeeId"] = *e.EmployeeID
		}
		if e.CustomerID != nil {
			extra["customerId"] = *e.CustomerID
		}
		return o.entry(rec, e.Actor, ActionMemberAdded, OutcomeSuccess, "", "group", e.GroupID, extra), true
	case events.JoinDenied:
		return o.entry(rec, e.Actor, ActionJoinDenied, OutcomeDenied, "not a group member", "group", e.GroupID, nil), true
	case events.HistoryDenied:
		return o.entry(rec, e.Actor, ActionHistoryDenied, OutcomeDenied, "not a group member", "group", e.GroupID, nil), true
	case events.MessageRejected:
		if e.Reason != events.RejectNotMember {
			return nil, false
		}
		return o.entry(rec, e.Actor, ActionSendDenied, OutcomeDenied, "not a group member", "group", e.GroupID, map[string]any{
			"transport": string(e.Transport),
		}), true
	case events.AuthFailed:
		entry := o.entry(rec, identity.Identity{}, ActionAuthFailed, OutcomeDenied, e.Code, "", 0, map[string]any{
			"transport": string(e.Transport),
			"ip":        o.sanitizer.IP(e.ClientIP),
		})
		entry.ActorID = nil
		return entry, true
	}
	return nil, false
}

func (o *Observer) entry(rec record, actor identity.Identity, action, outcome, reason, resourceType string, resourceID int64, extra map[string]any) *Entry {
	metadata := map[string]any{
		"eventId":       idgen.New(""),
		"timestamp":     rec.at.Format(time.RFC3339Nano),
		"outcome":       outcome,
		"outcomeReason": nil,
		"requestId":     nil,
		"actorRole":     nil,
		"tenantId":      nil,
		"resourceType":  nil,
		"resourceId":    nil,
		"extra":         nil,
	}
	if reason != "" {
		metadata["outcomeReason"] = o.sanitizer.Text(reason)
	}
	if rec.requestID != "" {
		metadata["requestId"] = rec.requestID
	}
	if actor.Role != "" {
		metadata["actorRole"] = string(actor.Role)
	}
	if actor.OrgID != nil {
		metadata["tenantId"] = *actor.OrgID
	}
	if resourceType != "" {
		metadata["resourceType"] = resourceType
		metadata["resourceId"] = resourceID
	}
	if len(extra) > 0 {
		metadata["extra"] = extra
	}

	entry := &Entry{
		Action:    action,
		Metadata:  metadata,
		CreatedAt: rec.at,
	}
	if actor.ID != 0 {
		id := actor.ID
		entry.ActorID = &id
	}
	if email := o.sanitizer.Email(actor.Email); email != "" {
		entry.ActorEmail = &email
	}
	if resourceType != "" {
		target := resourceType + ":" + strconv.FormatInt(resourceID, 10)
		entry.Target = &target
	}
	return entry
}

func (o *Observer) persistenceError(e events.PersistenceFailed, rec record) *ErrorEntry {
	entry := &ErrorEntry{
		EventType: EventTypePersistenceError,
		Severity:  SeverityHigh,
		Message:   fmt.Sprintf("Chat persistence failed during %s", e.Operation),
		TenantID:  e.Actor.OrgID,
		Payload: map[string]any{
			"operation": e.Operation,
			"groupId":   e.GroupID,
			"requestId": rec.requestID,
		},
		CreatedAt: rec.at,
	}
	if e.Err != nil {
		entry.Payload["error"] = o.sanitizer.Text(e.Err.Error())
	}
	if e.Actor.ID != 0 {
		id := e.Actor.ID
		entry.UserID = &id
	}
	return entry
}

func audited(event events.Event) bool {
	switch e := event.(type) {
	case events.MessageSent, events.GroupCreated, events.MemberAdded,
		events.JoinDenied, events.HistoryDenied, events.PersistenceFailed, events.AuthFailed:
		return true
	case events.MessageRejected:
		return e.Reason == events.RejectNotMember
	}
	return false
}

func tenantOf(metadata map[string]any) *int64 {
	if v, ok := metadata["tenantId"].(int64); ok {
		return &v
	}
	return nil
}

var _ events.Observer = (*Observer)(nil)
