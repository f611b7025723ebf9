package auditrepo

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"collab-server/services/groupchat-api/internal/infrastructure/audit"
	"collab-server/services/groupchat-api/internal/infrastructure/database/dbschema"
)

// AuditGormRepository appends to audit_log and error_log. It always writes
// through the primary, outside any request transaction.
type AuditGormRepository struct {
	db *gorm.DB
}

var _ audit.Store = (*AuditGormRepository)(nil)

func NewAuditGormRepository(db *gorm.DB) *AuditGormRepository {
	return &AuditGormRepository{db: db}
}

// InsertAudit implements audit.Store.
func (repo *AuditGormRepository) InsertAudit(ctx context.Context, entry *audit.Entry) error {
	row, err := dbschema.NewSchemaAuditLog(entry)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	return repo.db.WithContext(ctx).Create(row).Error
}

// InsertError implements audit.Store.
func (repo *AuditGormRepository) InsertError(ctx context.Context, entry *audit.ErrorEntry) error {
	row, err := dbschema.NewSchemaErrorLog(entry)
	if err != nil {
		return fmt.Errorf("encode error payload: %w", err)
	}
	return repo.db.WithContext(ctx).Create(row).Error
}

// CountAudit implements audit.Store.
func (repo *AuditGormRepository) CountAudit(ctx context.Context) (int64, error) {
	var total int64
	err := repo.db.WithContext(ctx).Model(&dbschema.AuditLog{}).Count(&total).Error
	return total, err
}

// DeleteOldestAudit implements audit.Store.
func (repo *AuditGormRepository) DeleteOldestAudit(ctx context.Context, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	oldest := repo.db.
		Model(&dbschema.AuditLog{}).
		Select("id").
		Order("created_at ASC, id ASC").
		Limit(n)
	res := repo.db.WithContext(ctx).
		Where("id IN (?)", oldest).
		Delete(&dbschema.AuditLog{})
	return res.RowsAffected, res.Error
}
