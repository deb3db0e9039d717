package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/labshare/internal/auth"
	"github.com/geocoder89/labshare/internal/observability"
	"github.com/gin-gonic/gin"
)

// Keep these small so tests can fake them.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type RoleResolver interface {
	RoleOf(ctx context.Context, userID int64) (string, error)
}

type AuthMiddleware struct {
	tokens     TokenVerifier
	roles      RoleResolver
	staleAfter time.Duration
	prom       *observability.Prom
	log        *slog.Logger
	now        func() time.Time
}

// NewAuthMiddleware builds the authorization gate. When roles is non-nil and
// staleAfter > 0, tokens issued longer ago than staleAfter have their role
// re-read before any role check runs.
func NewAuthMiddleware(tokens TokenVerifier, roles RoleResolver, staleAfter time.Duration, prom *observability.Prom, log *slog.Logger) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &AuthMiddleware{
		tokens:     tokens,
		roles:      roles,
		staleAfter: staleAfter,
		prom:       prom,
		log:        log,
		now:        time.Now,
	}
}

// WithClock swaps the time source used for role staleness.
func (m *AuthMiddleware) WithClock(now func() time.Time) *AuthMiddleware {
	m.now = now
	return m
}

// BearerToken returns the token from "Authorization: Bearer <token>".
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (m *AuthMiddleware) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := BearerToken(c)
		if !ok {
			m.prom.IncTokenOutcome("missing")
			abort(c, http.StatusUnauthorized, "unauthenticated", "Missing or invalid Authorization header", nil)
			return
		}

		claims, err := m.tokens.Verify(raw)
		if err != nil {
			var expired *auth.ExpiredError
			switch {
			case errors.As(err, &expired):
				m.prom.IncTokenOutcome("expired")
				abort(c, http.StatusUnauthorized, "token_expired", "Access token expired", gin.H{
					"expiredAt": expired.ExpiredAt.UTC().Format(time.RFC3339),
				})
			case errors.Is(err, auth.ErrSecretMissing):
				m.log.ErrorContext(c.Request.Context(), "token verification misconfigured", "err", err)
				abort(c, http.StatusInternalServerError, "internal_error", "Authentication is unavailable", nil)
			default:
				m.prom.IncTokenOutcome("invalid")
				abort(c, http.StatusUnauthorized, "invalid_token", "Invalid access token", nil)
			}
			return
		}

		userID, _ := claims.SubjectID()
		role := claims.Role

		if m.isStale(claims) {
			live, err := m.roles.RoleOf(c.Request.Context(), userID)
			if err != nil {
				m.log.ErrorContext(c.Request.Context(), "role confirmation failed", "user_id", userID, "err", err)
				abort(c, http.StatusServiceUnavailable, "role_unavailable", "Could not confirm role, try again", nil)
				return
			}
			role = live
		}

		m.prom.IncTokenOutcome("ok")

		c.Set(CtxUserID, userID)
		c.Set(CtxEmail, claims.Email)
		c.Set(CtxRole, role)
		c.Set(CtxClaims, claims)

		c.Next()
	}
}

func (m *AuthMiddleware) isStale(claims *auth.Claims) bool {
	if m.roles == nil || m.staleAfter <= 0 {
		return false
	}
	if claims.IssuedAt == nil {
		return true
	}
	return m.now().Sub(claims.IssuedAt.Time) > m.staleAfter
}

// Helpers so handlers don't need to know the context keys.

func UserIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func RoleFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxRole)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}

func EmailFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxEmail)
	if !ok {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}
