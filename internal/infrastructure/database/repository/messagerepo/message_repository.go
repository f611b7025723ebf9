package messagerepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/infrastructure/database/dbschema"
	"collab-server/services/groupchat-api/internal/infrastructure/database/transaction"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

type MessageGormRepository struct {
	db *transaction.Database
}

var _ message.Repository = (*MessageGormRepository)(nil)

func NewMessageGormRepository(db *transaction.Database) *MessageGormRepository {
	return &MessageGormRepository{db: db}
}

// Create implements message.Repository.
func (repo *MessageGormRepository) Create(ctx context.Context, m *message.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	row := dbschema.NewSchemaMessage(m)
	if err := repo.db.GetTx(ctx).Create(row).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to create message", err, "message-create-db-002")
	}
	m.ID = row.ID
	m.CreatedAt = row.CreatedAt
	return nil
}

// Get implements message.Repository.
func (repo *MessageGormRepository) Get(ctx context.Context, id int64) (*message.Message, error) {
	var row dbschema.Message
	err := repo.db.GetTx(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to find message", err, "message-get-db-001")
	}
	out := row.EtoD()
	return &out, nil
}

// ListPage implements message.Repository. The row-value comparison matches
// the (group_id, created_at DESC, id DESC) index.
func (repo *MessageGormRepository) ListPage(ctx context.Context, q message.PageQuery) ([]message.Message, error) {
	query := repo.db.GetTx(ctx).Where("group_id = ?", q.GroupID)
	if q.Before != nil {
		query = query.Where("(created_at, id) < (?, ?)", q.Before.CreatedAt, q.Before.ID)
	}
	if q.BeforeID != nil {
		query = query.Where("id < ?", *q.BeforeID)
	}
	query = query.Order("created_at DESC, id DESC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var rows []dbschema.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list messages", err, "message-list-db-001")
	}
	out := make([]message.Message, len(rows))
	for i := range rows {
		out[i] = rows[i].EtoD()
	}
	return out, nil
}
