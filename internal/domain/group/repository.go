package group

import (
	"context"
	"time"

	"collab-server/services/groupchat-api/internal/domain/identity"
)

// Repository persists groups.
type Repository interface {
	// Create inserts the group and fills in ID and CreatedAt.
	Create(ctx context.Context, g *Group) error

	// Get returns a group by id, or nil when it does not exist.
	Get(ctx context.Context, id int64) (*Group, error)

	// FindByProject returns the group provisioned for a project, or nil.
	FindByProject(ctx context.Context, projectID int64) (*Group, error)

	// LockProject serializes provisioning for a project until the unit of
	// work carried by ctx ends.
	LockProject(ctx context.Context, projectID int64) error

	// GetMany returns the groups with the given ids keyed by id.
	GetMany(ctx context.Context, ids []int64) (map[int64]Group, error)

	// CountMembers returns the member count of each listed group.
	CountMembers(ctx context.Context, ids []int64) (map[int64]int, error)

	// StampLastMessage sets last_message_at to at unless it is already later.
	StampLastMessage(ctx context.Context, groupID int64, at time.Time) error
}

// AdminDirectory lists the administrators of an organization.
type AdminDirectory interface {
	OrgAdminIDs(ctx context.Context, orgID int64) ([]int64, error)
}

// Notifier delivers targeted lifecycle events to online users.
type Notifier interface {
	GroupCreated(ctx context.Context, payload CreatedPayload)
	MemberAdded(ctx context.Context, groupID int64, kind identity.MemberKind, participantID int64)
}
