package message

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// History serves paginated, ascending, name-enriched message pages.
type History interface {
	// List checks membership and returns up to q.Limit messages before the
	// cursor, oldest first.
	List(ctx context.Context, actor identity.Identity, groupID int64, q HistoryQuery) ([]View, error)

	// Backlog returns the most recent BacklogSize messages, oldest first. The
	// caller is responsible for the membership check.
	Backlog(ctx context.Context, groupID int64) ([]View, error)
}

type history struct {
	repo     Repository
	oracle   membership.Oracle
	resolver Resolver
	observer events.Observer
	log      zerolog.Logger
}

// NewHistory creates the history service.
func NewHistory(repo Repository, oracle membership.Oracle, resolver Resolver, observer events.Observer, log zerolog.Logger) History {
	if observer == nil {
		observer = events.Nop
	}
	return &history{
		repo:     repo,
		oracle:   oracle,
		resolver: resolver,
		observer: observer,
		log:      log.With().Str("component", "message-history").Logger(),
	}
}

func (h *history) List(ctx context.Context, actor identity.Identity, groupID int64, q HistoryQuery) ([]View, error) {
	ok, err := h.oracle.IsMember(ctx, groupID, actor)
	if err != nil {
		h.observer.Observe(ctx, events.PersistenceFailed{Operation: "membership_check", GroupID: groupID, Actor: actor, Err: err})
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeDatabaseError,
			"membership lookup failed", err, "message-history-membership-001")
	}
	if !ok {
		h.observer.Observe(ctx, events.HistoryDenied{GroupID: groupID, Actor: actor})
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden,
			ReasonNotMember, nil, "message-history-forbidden-001")
	}

	cursor, err := ParseCursor(q.Before)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"invalid before cursor", err, "message-history-validation-001")
	}

	page := PageQuery{GroupID: groupID, Limit: ClampLimit(q.Limit)}
	switch {
	case cursor.Time != nil:
		page.Before = &Position{CreatedAt: *cursor.Time}
	case cursor.ID != nil:
		anchor, err := h.repo.Get(ctx, *cursor.ID)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeDatabaseError,
				"cursor lookup failed", err, "message-history-db-001")
		}
		if anchor != nil && anchor.GroupID == groupID {
			pos := anchor.Position()
			page.Before = &pos
		} else {
			page.BeforeID = cursor.ID
		}
	}

	return h.fetch(ctx, page)
}

func (h *history) Backlog(ctx context.Context, groupID int64) ([]View, error) {
	return h.fetch(ctx, PageQuery{GroupID: groupID, Limit: BacklogSize})
}

func (h *history) fetch(ctx context.Context, page PageQuery) ([]View, error) {
	rows, err := h.repo.ListPage(ctx, page)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeDatabaseError,
			"message page query failed", err, "message-history-db-002")
	}
	slices.Reverse(rows)

	refs := make([]SenderRef, 0, len(rows))
	for _, m := range rows {
		refs = append(refs, SenderRef{Type: m.SenderType, ID: m.SenderID})
	}
	names := h.resolver.Resolve(ctx, refs)

	views := make([]View, 0, len(rows))
	for _, m := range rows {
		views = append(views, NewView(m, names[SenderRef{Type: m.SenderType, ID: m.SenderID}]))
	}
	return views, nil
}
