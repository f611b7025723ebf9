package group

import (
	"time"

	"collab-server/services/groupchat-api/internal/domain/membership"
)

// Group is a named conversation space tied to a project and an organization.
type Group struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	ProjectID     int64      `json:"projectId"`
	OrgID         int64      `json:"orgId"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Summary is a group as listed for one participant.
type Summary struct {
	Group
	MemberCount int             `json:"memberCount"`
	Role        membership.Role `json:"role"`
	JoinedAt    time.Time       `json:"joinedAt"`
}

// MemberInput names one participant to add. Exactly one id must be set.
type MemberInput struct {
	EmployeeID *int64
	CustomerID *int64
	Role       string
}

// CreateInput carries the fields of an admin-created group.
type CreateInput struct {
	ProjectID int64
	Name      string
	OrgID     int64
	Members   []MemberInput
}

// ProvisionInput carries the fields of a project-acceptance group.
type ProvisionInput struct {
	Name       string
	OrgID      int64
	CustomerID int64
}

// Member is a membership enriched with the participant's display name.
type Member struct {
	ID         int64           `json:"id"`
	GroupID    int64           `json:"groupId"`
	EmployeeID *int64          `json:"employeeId,omitempty"`
	CustomerID *int64          `json:"customerId,omitempty"`
	Role       membership.Role `json:"role"`
	Name       string          `json:"name"`
	JoinedAt   time.Time       `json:"joinedAt"`
}

// CreatedPayload is the group_created event body.
type CreatedPayload struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	Name      string    `json:"name"`
	OrgID     int64     `json:"orgId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewCreatedPayload builds the group_created event body.
func NewCreatedPayload(g Group) CreatedPayload {
	return CreatedPayload{
		ID:        g.ID,
		ProjectID: g.ProjectID,
		Name:      g.Name,
		OrgID:     g.OrgID,
		CreatedAt: g.CreatedAt,
	}
}
