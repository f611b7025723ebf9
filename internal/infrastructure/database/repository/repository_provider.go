package repository

import (
	"github.com/google/wire"

	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/auditrepo"
	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/directoryrepo"
	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/grouprepo"
	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/memberrepo"
	"collab-server/services/groupchat-api/internal/infrastructure/database/repository/messagerepo"
)

var RepositoryProvider = wire.NewSet(
	grouprepo.NewGroupGormRepository,
	memberrepo.NewMemberGormRepository,
	messagerepo.NewMessageGormRepository,
	directoryrepo.NewDirectoryGormRepository,
	auditrepo.NewAuditGormRepository,
)
