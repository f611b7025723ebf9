package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"collab-server/services/groupchat-api/internal/config"
	"collab-server/services/groupchat-api/internal/domain/group"
	"collab-server/services/groupchat-api/internal/domain/membership"
	"collab-server/services/groupchat-api/internal/domain/message"
	"collab-server/services/groupchat-api/internal/domain/transaction"
	"collab-server/services/groupchat-api/internal/infrastructure/audit"
	"collab-server/services/groupchat-api/internal/infrastructure/database"
	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/auditrepo"
	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/directoryrepo"
	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/grouprepo"
	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/memberrepo"
	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/messagerepo"
	dbtx "collab-server/services/groupchat-api/internal/infrastructure/database/transaction"
	"collab-server/services/groupchat-api/internal/infrastructure/store"
	"collab-server/services/groupchat-api/internal/interfaces/httpserver"
)

// Directory resolves participant names and organization admins.
type Directory interface {
	message.Directory
	group.AdminDirectory
}

// Stores bundles the persistence ports of one store driver.
type Stores struct {
	Groups      group.Repository
	Stamper     message.GroupStamper
	Memberships membership.Repository
	Messages    message.Repository
	Directory   Directory
	Tx          transaction.Manager
	Audit       audit.Store
	Ready       httpserver.ReadinessCheck
	Close       func() error
}

// OpenStores opens the store selected by STORE_DRIVER.
func OpenStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Stores, error) {
	if cfg.UsesPostgres() {
		return OpenPostgresStores(ctx, cfg, log)
	}
	log.Warn().Msg("using in-memory store, data is lost on restart")
	return NewMemoryStores(store.NewMemoryStore(log), store.NewMemoryAudit()), nil
}

// OpenPostgresStores connects to PostgreSQL, applies migrations when enabled
// and returns the GORM repositories.
func OpenPostgresStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Stores, error) {
	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		ReplicaDSN:      cfg.DatabaseReplicaURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		return nil, err
	}

	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db, log); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	tx := dbtx.NewDatabase(db)
	groups := grouprepo.NewGroupGormRepository(tx)
	return &Stores{
		Groups:      groups,
		Stamper:     groups,
		Memberships: memberrepo.NewMemberGormRepository(tx),
		Messages:    messagerepo.NewMessageGormRepository(tx),
		Directory:   directoryrepo.NewDirectoryGormRepository(tx),
		Tx:          tx,
		Audit:       auditrepo.NewAuditGormRepository(db),
		Ready: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
		Close: func() error {
			return database.Close(db)
		},
	}, nil
}

// NewMemoryStores exposes an in-memory store through the persistence ports.
func NewMemoryStores(mem *store.MemoryStore, auditStore *store.MemoryAudit) *Stores {
	groups := mem.Groups()
	return &Stores{
		Groups:      groups,
		Stamper:     groups,
		Memberships: mem.Memberships(),
		Messages:    mem.Messages(),
		Directory:   mem.Directory(),
		Tx:          mem,
		Audit:       auditStore,
		Close:       func() error { return nil },
	}
}
