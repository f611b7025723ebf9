package message

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/domain/transaction"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// Client-facing reasons reported by the pipeline.
const (
	ReasonTextRequired = "Message text required"
	ReasonNotMember    = "Not a group member"
	ReasonSendFailed   = "Failed to send message"
)

// orderStripes is the number of locks that serialize writes per group.
const orderStripes = 64

// orderStripe serializes stamp, persist and publish for the groups hashed
// onto it, so commit order, broadcast order and (created_at, id) order agree.
type orderStripe struct {
	mu   sync.Mutex
	last time.Time
}

type orderKey struct{}

// heldStripe marks a context that runs inside Sequence for groupID.
type heldStripe struct {
	groupID int64
	stripe  *orderStripe
}

// stamp returns a creation time at storage precision that never precedes
// one already issued by the stripe. Ties are broken by id.
func (s *orderStripe) stamp(now time.Time) time.Time {
	at := now.UTC().Truncate(time.Microsecond)
	if at.Before(s.last) {
		at = s.last
	}
	s.last = at
	return at
}

// Pipeline validates, persists and broadcasts messages. Both transports and
// the group service's system messages go through it.
type Pipeline interface {
	// Send runs the full path for a user-authored message.
	Send(ctx context.Context, actor identity.Identity, in SendInput, transport events.Transport) (*View, error)

	// Record persists a message and stamps its group in one unit of work. It
	// joins a transaction already carried by ctx.
	Record(ctx context.Context, m *Message) error

	// RecordSystem persists a system message and returns its view without
	// publishing it.
	RecordSystem(ctx context.Context, groupID int64, text string) (*View, error)

	// Publish delivers an already persisted message to the group's room.
	Publish(ctx context.Context, view View)

	// Sequence runs fn while holding the group's ordering lock and publishes
	// the view fn returns once fn succeeds. Messages recorded by fn are
	// stamped under the lock. fn opens its own unit of work; Sequence must
	// not be called from inside one.
	Sequence(ctx context.Context, groupID int64, fn func(ctx context.Context) (*View, error)) (*View, error)
}

// PipelineConfig bundles the collaborators of the message pipeline.
type PipelineConfig struct {
	Repo      Repository
	Stamper   GroupStamper
	Oracle    membership.Oracle
	Tx        transaction.Manager
	Resolver  Resolver
	Publisher Publisher
	Sanitizer TextSanitizer
	Observer  events.Observer
	Now       func() time.Time
}

type pipeline struct {
	repo      Repository
	stamper   GroupStamper
	oracle    membership.Oracle
	tx        transaction.Manager
	resolver  Resolver
	publisher Publisher
	sanitizer TextSanitizer
	observer  events.Observer
	now       func() time.Time
	log       zerolog.Logger

	stripes [orderStripes]orderStripe
}

// NewPipeline creates the message pipeline.
func NewPipeline(cfg PipelineConfig, log zerolog.Logger) Pipeline {
	p := &pipeline{
		repo:      cfg.Repo,
		stamper:   cfg.Stamper,
		oracle:    cfg.Oracle,
		tx:        cfg.Tx,
		resolver:  cfg.Resolver,
		publisher: cfg.Publisher,
		sanitizer: cfg.Sanitizer,
		observer:  cfg.Observer,
		now:       cfg.Now,
		log:       log.With().Str("component", "message-pipeline").Logger(),
	}
	if p.observer == nil {
		p.observer = events.Nop
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.tx == nil {
		p.tx = transaction.ManagerFunc(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
	}
	return p
}

func (p *pipeline) Send(ctx context.Context, actor identity.Identity, in SendInput, transport events.Transport) (*View, error) {
	text := in.Text
	if p.sanitizer != nil {
		text = p.sanitizer.Sanitize(text)
	}
	if strings.TrimSpace(text) == "" {
		p.observer.Observe(ctx, events.MessageRejected{
			GroupID:   in.GroupID,
			Actor:     actor,
			Reason:    events.RejectEmptyText,
			Transport: transport,
		})
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			ReasonTextRequired, nil, "message-send-validation-001")
	}

	ok, err := p.oracle.IsMember(ctx, in.GroupID, actor)
	if err != nil {
		p.observer.Observe(ctx, events.PersistenceFailed{
			Operation: "membership_check",
			GroupID:   in.GroupID,
			Actor:     actor,
			Err:       err,
		})
		return nil, p.sendFailed(ctx, err, "message-send-membership-001")
	}
	if !ok {
		p.observer.Observe(ctx, events.MessageRejected{
			GroupID:   in.GroupID,
			Actor:     actor,
			Reason:    events.RejectNotMember,
			Transport: transport,
		})
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			ReasonNotMember, nil, "message-send-forbidden-001")
	}

	m := &Message{
		GroupID:    in.GroupID,
		SenderID:   actor.ID,
		SenderType: actor.Type,
		Text:       text,
		Meta:       in.Meta,
	}
	name := strings.TrimSpace(actor.Name)
	if name == "" {
		name = p.resolver.ResolveOne(ctx, SenderRef{Type: m.SenderType, ID: m.SenderID})
	}

	view, err := p.Sequence(ctx, m.GroupID, func(seqCtx context.Context) (*View, error) {
		if err := p.Record(seqCtx, m); err != nil {
			return nil, err
		}
		v := NewView(*m, name)
		return &v, nil
	})
	if err != nil {
		p.observer.Observe(ctx, events.PersistenceFailed{
			Operation: "message_create",
			GroupID:   in.GroupID,
			Actor:     actor,
			Err:       err,
		})
		return nil, p.sendFailed(ctx, err, "message-create-db-001")
	}

	p.observer.Observe(ctx, events.MessageSent{
		GroupID:   m.GroupID,
		MessageID: m.ID,
		Actor:     actor,
		Sender:    m.SenderType,
		Transport: transport,
		At:        m.CreatedAt,
	})
	return view, nil
}

func (p *pipeline) Record(ctx context.Context, m *Message) error {
	if m.CreatedAt.IsZero() {
		if held, ok := ctx.Value(orderKey{}).(heldStripe); ok && held.groupID == m.GroupID {
			m.CreatedAt = held.stripe.stamp(p.now())
		} else {
			m.CreatedAt = p.now().UTC().Truncate(time.Microsecond)
		}
	}
	return p.tx.Do(ctx, func(txCtx context.Context) error {
		if err := p.repo.Create(txCtx, m); err != nil {
			return err
		}
		return p.stamper.StampLastMessage(txCtx, m.GroupID, m.CreatedAt)
	})
}

func (p *pipeline) RecordSystem(ctx context.Context, groupID int64, text string) (*View, error) {
	m := &Message{
		GroupID:    groupID,
		SenderID:   identity.SystemSenderID,
		SenderType: identity.SenderSystem,
		Text:       text,
	}
	if err := p.Record(ctx, m); err != nil {
		if platformerrors.GetPlatformError(err) != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to record system message")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeDatabaseError,
			"failed to record system message", err, "message-system-db-001")
	}
	view := NewView(*m, identity.FallbackName(identity.SenderSystem, identity.SystemSenderID))
	return &view, nil
}

func (p *pipeline) Sequence(ctx context.Context, groupID int64, fn func(ctx context.Context) (*View, error)) (*View, error) {
	stripe := p.stripeFor(groupID)
	stripe.mu.Lock()
	defer stripe.mu.Unlock()

	view, err := fn(context.WithValue(ctx, orderKey{}, heldStripe{groupID: groupID, stripe: stripe}))
	if err != nil {
		return nil, err
	}
	if view != nil {
		p.Publish(ctx, *view)
	}
	return view, nil
}

func (p *pipeline) stripeFor(groupID int64) *orderStripe {
	return &p.stripes[uint64(groupID)%orderStripes]
}

func (p *pipeline) Publish(ctx context.Context, view View) {
	if p.publisher == nil {
		return
	}
	p.publisher.PublishMessage(ctx, view)
}

func (p *pipeline) sendFailed(ctx context.Context, err error, code string) error {
	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeDatabaseError,
		"message persistence failed", err, code, map[string]any{"public_message": ReasonSendFailed})
}
