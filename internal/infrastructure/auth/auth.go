package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/config"
	"collab-server/services/groupchat-api/internal/domain/events"
	"collab-server/services/groupchat-api/internal/domain/identity"
	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// Failure codes returned to clients.
const (
	CodeNoAuth       = "NO_AUTH"
	CodeInvalidToken = "INVALID_TOKEN"
)

// IdentityKey is the gin context key holding the verified identity.
const IdentityKey = "identity"

var (
	// ErrNoToken is returned when no credential was presented.
	ErrNoToken = errors.New("missing token")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Error is an authentication failure with its client-facing code.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string { return e.Code + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the client-facing code of an authentication error.
func CodeOf(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return CodeInvalidToken
}

// Validator verifies bearer tokens signed with a shared secret or with keys
// from a JWKS endpoint.
type Validator struct {
	cfg      *config.Config
	log      zerolog.Logger
	secret   []byte
	jwks     *keyfunc.JWKS
	observer events.Observer
}

// NewValidator initializes JWKS fetching when a JWKS URL is configured.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	v := &Validator{
		cfg:      cfg,
		log:      log.With().Str("component", "auth").Logger(),
		observer: events.Nop,
	}
	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		v.secret = []byte(secret)
	}

	if url := strings.TrimSpace(cfg.AuthJWKSURL); url != "" {
		options := keyfunc.Options{
			Ctx:               ctx,
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				v.log.Error().Err(err).Msg("jwks refresh error")
			},
		}
		jwks, err := keyfunc.Get(url, options)
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}
		v.jwks = jwks
	}

	if v.secret == nil && v.jwks == nil {
		return nil, fmt.Errorf("no token verification key configured")
	}
	return v, nil
}

// WithObserver sets the observer notified of authentication failures.
func (v *Validator) WithObserver(observer events.Observer) *Validator {
	if observer != nil {
		v.observer = observer
	}
	return v
}

// Ready indicates if the validator is prepared.
func (v *Validator) Ready() bool {
	return v != nil && (v.secret != nil || v.jwks != nil)
}

// Close stops background JWKS refreshes.
func (v *Validator) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// Verify turns a raw credential into a trusted identity. The credential may
// carry a "Bearer " prefix.
func (v *Validator) Verify(ctx context.Context, raw string) (identity.Identity, error) {
	tokenString := ExtractToken(raw)
	if tokenString == "" {
		return identity.Identity{}, &Error{Code: CodeNoAuth, Err: ErrNoToken}
	}

	opts := []jwt.ParserOption{jwt.WithLeeway(30 * time.Second)}
	if issuer := strings.TrimSpace(v.cfg.AuthIssuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(v.cfg.AuthAudience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	token, err := jwt.Parse(tokenString, v.keyFor, opts...)
	if err != nil || !token.Valid {
		if err == nil {
			err = ErrInvalidToken
		}
		return identity.Identity{}, &Error{Code: CodeInvalidToken, Err: err}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity.Identity{}, &Error{Code: CodeInvalidToken, Err: ErrInvalidToken}
	}
	ident, err := identityFromClaims(claims)
	if err != nil {
		return identity.Identity{}, &Error{Code: CodeInvalidToken, Err: err}
	}
	return ident, nil
}

func (v *Validator) keyFor(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.secret == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		}
		return v.secret, nil
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		if v.jwks == nil {
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		}
		return v.jwks.Keyfunc(token)
	}
	return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
}

// Middleware enforces bearer authentication and stores the identity on the
// gin context.
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := v.Verify(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			v.Reject(c, err, events.TransportHTTP)
			return
		}
		c.Set(IdentityKey, ident)
		c.Next()
	}
}

// TokenFromRequest returns the credential of a websocket handshake: the
// Authorization header first, then the token query parameter.
func TokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		return header
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Reject aborts the request with a 401 carrying the failure code.
func (v *Validator) Reject(c *gin.Context, err error, transport events.Transport) {
	code := CodeOf(err)
	v.log.Debug().Err(err).Str("code", code).Str("client_ip", c.ClientIP()).Msg("authentication failed")
	v.observer.Observe(c.Request.Context(), events.AuthFailed{
		Code:      code,
		Transport: transport,
		ClientIP:  c.ClientIP(),
	})

	message := "invalid token"
	if code == CodeNoAuth {
		message = "missing token"
	}
	platformerrors.WriteUnauthorized(c, message, code)
}

// IdentityFromContext returns the identity stored by Middleware.
func IdentityFromContext(c *gin.Context) (identity.Identity, bool) {
	raw, ok := c.Get(IdentityKey)
	if !ok {
		return identity.Identity{}, false
	}
	ident, ok := raw.(identity.Identity)
	return ident, ok
}

// ExtractToken strips an optional, case-insensitive "Bearer " prefix.
func ExtractToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw
}

func identityFromClaims(claims jwt.MapClaims) (identity.Identity, error) {
	id, err := int64Claim(claims["id"])
	if err != nil {
		return identity.Identity{}, fmt.Errorf("id claim: %w", err)
	}

	role, _ := claims["role"].(string)
	explicitType, _ := claims["type"].(string)
	ident := identity.New(id, role, explicitType)

	if raw, ok := claims["orgId"]; ok && raw != nil {
		orgID, err := int64Claim(raw)
		if err != nil {
			return identity.Identity{}, fmt.Errorf("orgId claim: %w", err)
		}
		ident.OrgID = &orgID
	}
	ident.Name, _ = claims["name"].(string)
	ident.Email, _ = claims["email"].(string)
	return ident, nil
}

func int64Claim(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case nil:
		return 0, errors.New("missing")
	}
	return 0, fmt.Errorf("unsupported type %T", raw)
}
