package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims of a development token.
type TokenClaims struct {
	ID    int64
	Role  string
	Type  string
	OrgID *int64
	Name  string
	Email string
}

// SignHS256 mints a token verifiable with the shared secret. It backs the
// CLI's token command and the tests.
func SignHS256(secret []byte, claims TokenClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	mc := jwt.MapClaims{
		"id":   claims.ID,
		"role": claims.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if claims.Type != "" {
		mc["type"] = claims.Type
	}
	if claims.OrgID != nil {
		mc["orgId"] = *claims.OrgID
	}
	if claims.Name != "" {
		mc["name"] = claims.Name
	}
	if claims.Email != "" {
		mc["email"] = claims.Email
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(secret)
}
