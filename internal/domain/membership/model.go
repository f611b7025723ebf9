package membership

import (
	"strings"
	"time"

	"collab-server/services/groupchat-api/internal/domain/identity"
)

// Role is the capacity in which a participant belongs to a group.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// ParseRole normalizes a membership role; empty input defaults to member.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RoleMember:
		return RoleMember, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Membership links exactly one employee or customer to a group.
type Membership struct {
	ID         int64     `json:"id"`
	GroupID    int64     `json:"groupId"`
	EmployeeID *int64    `json:"employeeId,omitempty"`
	CustomerID *int64    `json:"customerId,omitempty"`
	Role       Role      `json:"role"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// Participant returns the member kind and id held by the row.
func (m Membership) Participant() (identity.MemberKind, int64) {
	switch {
	case m.EmployeeID != nil:
		return identity.MemberKindEmployee, *m.EmployeeID
	case m.CustomerID != nil:
		return identity.MemberKindCustomer, *m.CustomerID
	}
	return identity.MemberKindNone, 0
}
