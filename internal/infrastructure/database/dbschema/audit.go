package dbschema

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"collab-server/services/groupchat-api/internal/infrastructure/audit"
)

// AuditLog represents the platform's audit_log table
type AuditLog struct {
	ID         int64          `gorm:"primaryKey"`
	ActorID    *int64         `gorm:"column:actor_id"`
	ActorEmail *string        `gorm:"column:actor_email"`
	Action     string         `gorm:"not null"`
	Target     *string        `gorm:"column:target"`
	Metadata   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_log"
}

// NewSchemaAuditLog creates a database schema from an audit entry
func NewSchemaAuditLog(e *audit.Entry) (*AuditLog, error) {
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return nil, err
	}
	return &AuditLog{
		ActorID:    e.ActorID,
		ActorEmail: e.ActorEmail,
		Action:     e.Action,
		Target:     e.Target,
		Metadata:   metadata,
		CreatedAt:  e.CreatedAt,
	}, nil
}

// ErrorLog represents the platform's error_log table
type ErrorLog struct {
	ID        int64          `gorm:"primaryKey"`
	EventType string         `gorm:"not null"`
	Severity  string         `gorm:"not null"`
	Message   string         `gorm:"not null"`
	TenantID  *int64         `gorm:"column:tenant_id"`
	UserID    *int64         `gorm:"column:user_id"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}

// TableName specifies the table name for ErrorLog
func (ErrorLog) TableName() string {
	return "error_log"
}

// NewSchemaErrorLog creates a database schema from an error entry
func NewSchemaErrorLog(e *audit.ErrorEntry) (*ErrorLog, error) {
	payload, err := marshalJSON(e.Payload)
	if err != nil {
		return nil, err
	}
	return &ErrorLog{
		EventType: e.EventType,
		Severity:  e.Severity,
		Message:   e.Message,
		TenantID:  e.TenantID,
		UserID:    e.UserID,
		Payload:   payload,
		CreatedAt: e.CreatedAt,
	}, nil
}

func marshalJSON(v map[string]any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
