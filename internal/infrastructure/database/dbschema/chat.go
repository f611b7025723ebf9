package dbschema

import (
	"time"

	"gorm.io/datatypes"

	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/domain/message"
)

// ===============================================
// Group Schema
// ===============================================

// ChatGroup represents the database schema for chat groups
type ChatGroup struct {
	ID            int64      `gorm:"primaryKey"`
	Name          string     `gorm:"not null"`
	ProjectID     int64      `gorm:"not null;index"`
	OrgID         int64      `gorm:"not null"`
	LastMessageAt *time.Time `gorm:"column:last_message_at"`
	CreatedAt     time.Time  `gorm:"not null"`
}

// TableName specifies the table name for ChatGroup
func (ChatGroup) TableName() string {
	return "chat_group"
}

// EtoD converts database schema to domain group (Entity to Domain)
func (g *ChatGroup) EtoD() *group.Group {
	return &group.Group{
		ID:            g.ID,
		Name:          g.Name,
		ProjectID:     g.ProjectID,
		OrgID:         g.OrgID,
		LastMessageAt: g.LastMessageAt,
		CreatedAt:     g.CreatedAt,
	}
}

// NewSchemaChatGroup creates a database schema from domain group
func NewSchemaChatGroup(g *group.Group) *ChatGroup {
	return &ChatGroup{
		ID:            g.ID,
		Name:          g.Name,
		ProjectID:     g.ProjectID,
		OrgID:         g.OrgID,
		LastMessageAt: g.LastMessageAt,
		CreatedAt:     g.CreatedAt,
	}
}

// ===============================================
// Membership Schema
// ===============================================

// GroupMember represents the database schema for group memberships
type GroupMember struct {
	ID         int64  `gorm:"primaryKey"`
	GroupID    int64  `gorm:"not null"`
	EmployeeID *int64 `gorm:"column:employee_id"`
	CustomerID *int64 `gorm:"column:customer_id"`
	Role       string `gorm:"not null;default:member"`
	JoinedAt   time.Time
}

// TableName specifies the table name for GroupMember
func (GroupMember) TableName() string {
	return "group_member"
}

// EtoD converts database schema to domain membership (Entity to Domain)
func (m *GroupMember) EtoD() membership.Membership {
	role, ok := membership.ParseRole(m.Role)
	if !ok {
		role = membership.RoleMember
	}
	return membership.Membership{
		ID:         m.ID,
		GroupID:    m.GroupID,
		EmployeeID: m.EmployeeID,
		CustomerID: m.CustomerID,
		Role:       role,
		JoinedAt:   m.JoinedAt,
	}
}

// NewSchemaGroupMember creates a database schema from domain membership
func NewSchemaGroupMember(m *membership.Membership) *GroupMember {
	return &GroupMember{
		ID:         m.ID,
		GroupID:    m.GroupID,
		EmployeeID: m.EmployeeID,
		CustomerID: m.CustomerID,
		Role:       string(m.Role),
		JoinedAt:   m.JoinedAt,
	}
}

// ===============================================
// Message Schema
// ===============================================

// Message represents the database schema for chat messages
type Message struct {
	ID         int64          `gorm:"primaryKey"`
	GroupID    int64          `gorm:"not null"`
	SenderID   int64          `gorm:"not null"`
	SenderType string         `gorm:"not null"`
	Text       string         `gorm:"not null"`
	Meta       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "message"
}

// EtoD converts database schema to domain message (Entity to Domain)
func (m *Message) EtoD() message.Message {
	senderType, err := identity.ParseSenderType(m.SenderType)
	if err != nil {
		senderType = identity.SenderUnknown
	}
	out := message.Message{
		ID:         m.ID,
		GroupID:    m.GroupID,
		SenderID:   m.SenderID,
		SenderType: senderType,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
	if len(m.Meta) > 0 {
		out.Meta = []byte(m.Meta)
	}
	return out
}

// NewSchemaMessage creates a database schema from domain message
func NewSchemaMessage(m *message.Message) *Message {
	out := &Message{
		ID:         m.ID,
		GroupID:    m.GroupID,
		SenderID:   m.SenderID,
		SenderType: m.SenderType.String(),
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
	if len(m.Meta) > 0 && string(m.Meta) != "null" {
		out.Meta = datatypes.JSON(m.Meta)
	}
	return out
}

// ===============================================
// Directory Schemas (read-only)
// ===============================================

// Employee represents the platform's employee table
type Employee struct {
	ID    int64 `gorm:"primaryKey"`
	Name  string
	Email string
	Role  string
	OrgID int64
}

// TableName specifies the table name for Employee
func (Employee) TableName() string {
	return "employee"
}

// Customer represents the platform's customer table
type Customer struct {
	ID    int64 `gorm:"primaryKey"`
	Name  string
	Email string
	OrgID int64
}

// TableName specifies the table name for Customer
func (Customer) TableName() string {
	return "customer"
}
