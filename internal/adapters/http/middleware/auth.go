package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/http/dto"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/config"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/logging"
)

// ContextKeyClaims is the gin context key for verified claims.
const ContextKeyClaims = "claims"

const bearerPrefix = "Bearer "

// ErrMissingToken is returned when a request carries no bearer token.
var ErrMissingToken = errors.New("missing bearer token")

// Claims are the verified token claims. Scope is the OAuth2 space-separated list.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Scopes splits Scope.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// HasScope checks if the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes(), scope)
}

// HasAllScopes checks if the token grants every scope.
func (c *Claims) HasAllScopes(scopes ...string) bool {
	granted := c.Scopes()
	for _, s := range scopes {
		if !slices.Contains(granted, s) {
			return false
		}
	}

	return true
}

// HasAnyScope checks if the token grants at least one scope.
func (c *Claims) HasAnyScope(scopes ...string) bool {
	return slices.ContainsFunc(scopes, c.HasScope)
}

// Authenticator verifies and issues HS256 bearer tokens. A disabled
// authenticator lets every request through without claims.
type Authenticator struct {
	cfg    config.AuthConfig
	key    []byte
	parser *jwt.Parser
	now    func() time.Time
}

// NewAuthenticator builds an authenticator from cfg. A nil cfg disables auth.
func NewAuthenticator(cfg *config.AuthConfig) *Authenticator {
	if cfg == nil {
		return &Authenticator{now: time.Now}
	}

	return &Authenticator{
		cfg: *cfg,
		key: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
		now: time.Now,
	}
}

// Enabled reports whether tokens are checked.
func (a *Authenticator) Enabled() bool {
	return a.cfg.Enabled
}

// Parse verifies a raw token and returns its claims.
func (a *Authenticator) Parse(raw string) (*Claims, error) {
	claims := &Claims{}

	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return claims, nil
}

// Issue signs a token for subject that expires after ttl.
func (a *Authenticator) Issue(subject string, ttl time.Duration, scopes ...string) (string, error) {
	now := a.now()

	claims := Claims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    a.cfg.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{a.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signed, nil
}

// RequireJWT verifies the Authorization bearer token and stores the claims.
// The subject is added to the request logger.
func (a *Authenticator) RequireJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}

		raw, err := bearerToken(c)
		if err == nil {
			var claims *Claims

			claims, err = a.Parse(raw)
			if err == nil {
				c.Set(ContextKeyClaims, claims)

				ctx := c.Request.Context()
				ctx = logging.WithContext(ctx, logging.FromContext(ctx).With(slog.String("subject", claims.Subject)))
				c.Request = c.Request.WithContext(ctx)

				c.Next()

				return
			}
		}

		logging.FromContext(c.Request.Context()).Debug("authentication failed", slog.Any("error", err))

		message := "authentication required"
		if errors.Is(err, jwt.ErrTokenExpired) {
			message = "token expired"
		}

		c.Header("WWW-Authenticate", `Bearer realm="api"`)
		dto.AbortWithErrorCode(c, dto.ErrorCodeUnauthorized, message)
	}
}

// RequireScopes requires every scope on the verified claims. It must run after RequireJWT.
func (a *Authenticator) RequireScopes(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() || len(scopes) == 0 {
			c.Next()
			return
		}

		claims := GetClaims(c)
		if claims == nil {
			dto.AbortWithErrorCode(c, dto.ErrorCodeUnauthorized, "authentication required")
			return
		}

		if !claims.HasAllScopes(scopes...) {
			dto.AbortWithErrorCode(c, dto.ErrorCodeForbidden,
				"insufficient permissions: scopes ["+strings.Join(scopes, ", ")+"] required")

			return
		}

		c.Next()
	}
}

// RequireWrite applies the configured write scope. An empty write scope only
// requires a valid token.
func (a *Authenticator) RequireWrite() gin.HandlerFunc {
	if a.cfg.WriteScope == "" {
		return a.RequireScopes()
	}

	return a.RequireScopes(a.cfg.WriteScope)
}

// GetClaims returns the verified claims, or nil when auth is disabled.
func GetClaims(c *gin.Context) *Claims {
	if v, ok := c.Get(ContextKeyClaims); ok {
		if claims, ok := v.(*Claims); ok {
			return claims
		}
	}

	return nil
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMissingToken
	}

	return strings.TrimSpace(header[len(bearerPrefix):]), nil
}
