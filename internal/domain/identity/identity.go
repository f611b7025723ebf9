// Package identity models the authenticated subject of a chat operation.
package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// Role is the role claim carried by a verified token.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// ParseRole normalizes a role claim. Unknown roles are returned as-is with
// ok=false so callers can still build a presence key from them.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case RoleEmployee, RoleAdmin, RoleCustomer:
		return r, true
	default:
		return r, false
	}
}

// SenderType is the closed set of message authors.
type SenderType uint8

const (
	// SenderUnknown is the zero value; it never authorizes anything.
	SenderUnknown SenderType = iota
	SenderEmployee
	SenderAdmin
	SenderCustomer
	SenderSystem
)

// String returns the persisted representation of the sender type.
func (t SenderType) String() string {
	switch t {
	case SenderEmployee:
		return "employee"
	case SenderAdmin:
		return "admin"
	case SenderCustomer:
		return "customer"
	case SenderSystem:
		return "system"
	case SenderUnknown:
		return "unknown"
	}
	return "unknown"
}

// ParseSenderType parses the persisted representation of a sender type.
func ParseSenderType(raw string) (SenderType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "employee":
		return SenderEmployee, nil
	case "admin":
		return SenderAdmin, nil
	case "customer":
		return SenderCustomer, nil
	case "system":
		return SenderSystem, nil
	}
	return SenderUnknown, fmt.Errorf("unknown sender type %q", raw)
}

// MarshalText implements encoding.TextMarshaler.
func (t SenderType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SenderType) UnmarshalText(b []byte) error {
	parsed, err := ParseSenderType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MemberKind selects which membership column identifies a participant.
type MemberKind uint8

const (
	MemberKindNone MemberKind = iota
	MemberKindEmployee
	MemberKindCustomer
)

func (k MemberKind) String() string {
	switch k {
	case MemberKindEmployee:
		return "employee"
	case MemberKindCustomer:
		return "customer"
	case MemberKindNone:
		return "none"
	}
	return "none"
}

// MemberKind maps a sender type onto the membership store. Admins are
// employees for membership purposes; system and unknown senders are never
// members.
func (t SenderType) MemberKind() MemberKind {
	switch t {
	case SenderEmployee, SenderAdmin:
		return MemberKindEmployee
	case SenderCustomer:
		return MemberKindCustomer
	case SenderSystem, SenderUnknown:
		return MemberKindNone
	}
	return MemberKindNone
}

// SystemSenderID is the sentinel sender id of system-authored messages.
const SystemSenderID int64 = 0

// Identity is the trusted result of token verification.
type Identity struct {
	ID    int64
	Role  Role
	Type  SenderType
	OrgID *int64
	Name  string
	Email string
}

// New builds an identity from raw claims. An explicit type claim wins over
// the role; otherwise the type is derived from the role.
func New(id int64, role, explicitType string) Identity {
	r, _ := ParseRole(role)
	ident := Identity{ID: id, Role: r}

	if t, err := ParseSenderType(explicitType); err == nil && t != SenderSystem {
		ident.Type = t
		return ident
	}

	switch r {
	case RoleEmployee:
		ident.Type = SenderEmployee
	case RoleAdmin:
		ident.Type = SenderAdmin
	case RoleCustomer:
		ident.Type = SenderCustomer
	default:
		ident.Type = SenderUnknown
	}
	return ident
}

// Key is the presence key "{role}:{id}". When the role claim is empty the
// sender type is used instead.
func (i Identity) Key() string {
	label := string(i.Role)
	if label == "" {
		label = i.Type.String()
	}
	return Key(label, i.ID)
}

// Key builds a presence key from a role or type label and an id.
func Key(label string, id int64) string {
	return label + ":" + strconv.FormatInt(id, 10)
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// FallbackName is the synthetic display label "{senderType}:{senderId}".
func FallbackName(t SenderType, id int64) string {
	if t == SenderSystem {
		return "System"
	}
	return t.String() + ":" + strconv.FormatInt(id, 10)
}
