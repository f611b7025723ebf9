package grouprepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/infrastructure/database/dbschema"
	"collab-server/services/groupchat-api/internal/infrastructure/database/transaction"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

type GroupGormRepository struct {
	db *transaction.Database
}

var (
	_ group.Repository     = (*GroupGormRepository)(nil)
	_ message.GroupStamper = (*GroupGormRepository)(nil)
)

func NewGroupGormRepository(db *transaction.Database) *GroupGormRepository {
	return &GroupGormRepository{db: db}
}

// Create implements group.Repository.
func (repo *GroupGormRepository) Create(ctx context.Context, g *group.Group) error {
	row := dbschema.NewSchemaChatGroup(g)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := repo.db.GetTx(ctx).Create(row).Error; err != nil {
		return dbError(ctx, err, "failed to create group", "group-create-db-001")
	}
	g.ID = row.ID
	g.CreatedAt = row.CreatedAt
	return nil
}

// Get implements group.Repository.
func (repo *GroupGormRepository) Get(ctx context.Context, id int64) (*group.Group, error) {
	var row dbschema.ChatGroup
	err := repo.db.GetTx(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(ctx, err, "failed to find group", "group-get-db-001")
	}
	return row.EtoD(), nil
}

// FindByProject implements group.Repository.
func (repo *GroupGormRepository) FindByProject(ctx context.Context, projectID int64) (*group.Group, error) {
	var row dbschema.ChatGroup
	err := repo.db.GetTx(ctx).
		Where("project_id = ?", projectID).
		Order("id ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(ctx, err, "failed to find group by project", "group-project-db-001")
	}
	return row.EtoD(), nil
}

// LockProject implements group.Repository with a transaction-scoped
// advisory lock keyed on the project id.
func (repo *GroupGormRepository) LockProject(ctx context.Context, projectID int64) error {
	if !transaction.InTx(ctx) {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"project lock requires a transaction", nil, "group-project-lock-001")
	}
	if err := repo.db.GetTx(ctx).Exec("SELECT pg_advisory_xact_lock(?)", projectID).Error; err != nil {
		return dbError(ctx, err, "failed to lock project", "group-project-lock-002")
	}
	return nil
}

// GetMany implements group.Repository.
func (repo *GroupGormRepository) GetMany(ctx context.Context, ids []int64) (map[int64]group.Group, error) {
	out := make(map[int64]group.Group, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []dbschema.ChatGroup
	if err := repo.db.GetTx(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, dbError(ctx, err, "failed to list groups", "group-list-db-001")
	}
	for i := range rows {
		out[rows[i].ID] = *rows[i].EtoD()
	}
	return out, nil
}

// CountMembers implements group.Repository.
func (repo *GroupGormRepository) CountMembers(ctx context.Context, ids []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		GroupID int64
		Total   int
	}
	err := repo.db.GetTx(ctx).
		Model(&dbschema.GroupMember{}).
		Select("group_id, COUNT(*) AS total").
		Where("group_id IN ?", ids).
		Group("group_id").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(ctx, err, "failed to count group members", "group-count-db-001")
	}
	for _, r := range rows {
		out[r.GroupID] = r.Total
	}
	return out, nil
}

// StampLastMessage implements message.GroupStamper. The conditional update
// keeps last_message_at monotonic under concurrent writers.
func (repo *GroupGormRepository) StampLastMessage(ctx context.Context, groupID int64, at time.Time) error {
	err := repo.db.GetTx(ctx).
		Model(&dbschema.ChatGroup{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", groupID, at).
		Update("last_message_at", at).Error
	if err != nil {
		return dbError(ctx, err, "failed to stamp group", "group-stamp-db-001")
	}
	return nil
}

func dbError(ctx context.Context, err error, message, code string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, message, err, code)
}
