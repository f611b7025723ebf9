package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/infrastructure/auth"
	"collab-server/services/groupchat-api/internal/interfaces/httpserver/responses"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// currentIdentity returns the identity stored by the auth middleware, or
// writes a 401 and returns false.
func currentIdentity(c *gin.Context) (identity.Identity, bool) {
	ident, ok := auth.IdentityFromContext(c)
	if !ok {
		platformerrors.WriteUnauthorized(c, "missing token", auth.CodeNoAuth)
		return identity.Identity{}, false
	}
	return ident, true
}

// pathID parses a positive integer path parameter, or writes a 400 and
// returns false.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "invalid "+name, "handler-path-validation-001")
		return 0, false
	}
	return id, true
}

// orgOf returns the explicit org id, falling back to the caller's.
func orgOf(explicit int64, ident identity.Identity) int64 {
	if explicit > 0 {
		return explicit
	}
	if ident.OrgID != nil {
		return *ident.OrgID
	}
	return 0
}
