package directoryrepo

import (
	"context"

	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/infrastructure/database/dbschema"
	"collab-server/services/groupchat-api/internal/infrastructure/database/transaction"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// DirectoryGormRepository reads the platform's employee and customer tables.
type DirectoryGormRepository struct {
	db *transaction.Database
}

var (
	_ message.Directory    = (*DirectoryGormRepository)(nil)
	_ group.AdminDirectory = (*DirectoryGormRepository)(nil)
)

func NewDirectoryGormRepository(db *transaction.Database) *DirectoryGormRepository {
	return &DirectoryGormRepository{db: db}
}

type nameRow struct {
	ID   int64
	Name string
}

// EmployeeNames implements message.Directory with one query per call.
func (repo *DirectoryGormRepository) EmployeeNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	return repo.names(ctx, &dbschema.Employee{}, ids, "directory-employee-db-001")
}

// CustomerNames implements message.Directory with one query per call.
func (repo *DirectoryGormRepository) CustomerNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	return repo.names(ctx, &dbschema.Customer{}, ids, "directory-customer-db-001")
}

func (repo *DirectoryGormRepository) names(ctx context.Context, model any, ids []int64, code string) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []nameRow
	err := repo.db.GetTx(ctx).
		Model(model).
		Select("id, name").
		Where("id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to look up names", err, code)
	}
	for _, r := range rows {
		if r.Name != "" {
			out[r.ID] = r.Name
		}
	}
	return out, nil
}

// OrgAdminIDs implements group.AdminDirectory.
func (repo *DirectoryGormRepository) OrgAdminIDs(ctx context.Context, orgID int64) ([]int64, error) {
	var ids []int64
	err := repo.db.GetTx(ctx).
		Model(&dbschema.Employee{}).
		Where("org_id = ? AND role = ?", orgID, string(identity.RoleAdmin)).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list org admins", err, "directory-admins-db-001")
	}
	return ids, nil
}
