package membership

import (
	"context"

	"collab-server/services/groupchat-api/internal/domain/identity"
)

// Repository persists memberships.
type Repository interface {
	// Add inserts a membership. A duplicate participant in the same group
	// yields a CONFLICT platform error.
	Add(ctx context.Context, m *Membership) error

	// Find returns the row matching the predicate, or nil when none exists.
	Find(ctx context.Context, p Predicate) (*Membership, error)

	// ListByGroup returns all memberships of a group ordered by join time.
	ListByGroup(ctx context.Context, groupID int64) ([]Membership, error)

	// ListByParticipant returns every membership held by one participant.
	ListByParticipant(ctx context.Context, kind identity.MemberKind, participantID int64) ([]Membership, error)
}
