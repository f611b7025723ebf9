package membership

import (
	"collab-server/services/groupchat-api/internal/domain/identity"
)

// Predicate selects the membership row of one participant in one group.
// Exactly one of EmployeeID or CustomerID is set.
type Predicate struct {
	GroupID    int64
	EmployeeID *int64
	CustomerID *int64
}

// NewPredicate builds the lookup for an identity. It returns ok=false when
// the identity's type cannot be mapped onto the membership store, in which
// case the identity is not a member of anything.
func NewPredicate(groupID int64, ident identity.Identity) (Predicate, bool) {
	return PredicateFor(groupID, ident.Type.MemberKind(), ident.ID)
}

// PredicateFor builds the lookup for an explicit participant.
func PredicateFor(groupID int64, kind identity.MemberKind, participantID int64) (Predicate, bool) {
	id := participantID
	switch kind {
	case identity.MemberKindEmployee:
		return Predicate{GroupID: groupID, EmployeeID: &id}, true
	case identity.MemberKindCustomer:
		return Predicate{GroupID: groupID, CustomerID: &id}, true
	case identity.MemberKindNone:
		return Predicate{}, false
	}
	return Predicate{}, false
}

// Matches reports whether a membership row satisfies the predicate.
func (p Predicate) Matches(m Membership) bool {
	if m.GroupID != p.GroupID {
		return false
	}
	switch {
	case p.EmployeeID != nil:
		return m.EmployeeID != nil && *m.EmployeeID == *p.EmployeeID
	case p.CustomerID != nil:
		return m.CustomerID != nil && *m.CustomerID == *p.CustomerID
	}
	return false
}
