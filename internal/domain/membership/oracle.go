package membership

import (
	"context"

	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// Oracle answers membership questions. Every call goes to the store; results
// are never cached because membership can change during a connection.
type Oracle interface {
	IsMember(ctx context.Context, groupID int64, ident identity.Identity) (bool, error)
	RoleInGroup(ctx context.Context, groupID int64, ident identity.Identity) (Role, bool, error)
}

type oracle struct {
	repo Repository
	log  zerolog.Logger
}

// NewOracle creates a membership oracle backed by the repository.
func NewOracle(repo Repository, log zerolog.Logger) Oracle {
	return &oracle{
		repo: repo,
		log:  log.With().Str("component", "membership-oracle").Logger(),
	}
}

func (o *oracle) IsMember(ctx context.Context, groupID int64, ident identity.Identity) (bool, error) {
	_, ok, err := o.RoleInGroup(ctx, groupID, ident)
	return ok, err
}

func (o *oracle) RoleInGroup(ctx context.Context, groupID int64, ident identity.Identity) (Role, bool, error) {
	pred, ok := NewPredicate(groupID, ident)
	if !ok {
		o.log.Debug().
			Str("identity", ident.Key()).
			Int64("group_id", groupID).
			Msg("identity type cannot hold memberships")
		return "", false, nil
	}

	m, err := o.repo.Find(ctx, pred)
	if err != nil {
		return "", false, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "membership lookup failed")
	}
	if m == nil {
		return "", false, nil
	}
	return m.Role, true, nil
}
