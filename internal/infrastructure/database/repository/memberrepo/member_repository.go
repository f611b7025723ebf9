package memberrepo

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/infrastructure/database/dbschema"
	"collab-server/services/groupchat-api/internal/infrastructure/database/transaction"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type MemberGormRepository struct {
	db *transaction.Database
}

var _ membership.Repository = (*MemberGormRepository)(nil)

func NewMemberGormRepository(db *transaction.Database) *MemberGormRepository {
	return &MemberGormRepository{db: db}
}

// Add implements membership.Repository.
func (repo *MemberGormRepository) Add(ctx context.Context, m *membership.Membership) error {
	if m.Role == "" {
		m.Role = membership.RoleMember
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	row := dbschema.NewSchemaGroupMember(m)
	if err := repo.db.GetTx(ctx).Create(row).Error; err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict,
				"participant is already a member of the group", err, "membership-create-conflict-001")
		case pgForeignKeyViolation:
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"group not found", err, "membership-create-notfound-001")
		}
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to add group member", err, "membership-create-db-001")
	}
	m.ID = row.ID
	return nil
}

// Find implements membership.Repository.
func (repo *MemberGormRepository) Find(ctx context.Context, p membership.Predicate) (*membership.Membership, error) {
	q := repo.db.GetTx(ctx).Where("group_id = ?", p.GroupID)
	switch {
	case p.EmployeeID != nil:
		q = q.Where("employee_id = ?", *p.EmployeeID)
	case p.CustomerID != nil:
		q = q.Where("customer_id = ?", *p.CustomerID)
	default:
		return nil, nil
	}

	var row dbschema.GroupMember
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to find group member", err, "membership-find-db-001")
	}
	out := row.EtoD()
	return &out, nil
}

// ListByGroup implements membership.Repository.
func (repo *MemberGormRepository) ListByGroup(ctx context.Context, groupID int64) ([]membership.Membership, error) {
	var rows []dbschema.GroupMember
	err := repo.db.GetTx(ctx).
		Where("group_id = ?", groupID).
		Order("joined_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list group members", err, "membership-list-db-001")
	}
	return toDomain(rows), nil
}

// ListByParticipant implements membership.Repository.
func (repo *MemberGormRepository) ListByParticipant(ctx context.Context, kind identity.MemberKind, participantID int64) ([]membership.Membership, error) {
	q := repo.db.GetTx(ctx)
	switch kind {
	case identity.MemberKindEmployee:
		q = q.Where("employee_id = ?", participantID)
	case identity.MemberKindCustomer:
		q = q.Where("customer_id = ?", participantID)
	case identity.MemberKindNone:
		return nil, nil
	}

	var rows []dbschema.GroupMember
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list memberships", err, "membership-list-db-002")
	}
	return toDomain(rows), nil
}

func toDomain(rows []dbschema.GroupMember) []membership.Membership {
	out := make([]membership.Membership, len(rows))
	for i := range rows {
		out[i] = rows[i].EtoD()
	}
	return out
}

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState()
	}
	return ""
}
