package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKey constants for gin.Context values set by middleware.
const (
	CtxUserID = "userID"
	CtxRole   = "role"
)

// TokenParser verifies access tokens. *service.AuthService implements it.
type TokenParser interface {
	ParseAccessToken(token string) (*service.AppClaims, error)
}

func abortAuth(c *gin.Context, status int, err error) {
	code := "ERR_UNAUTHORIZED"
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		code = "ERR_TOKEN_EXPIRED"
	case errors.Is(err, domain.ErrForbidden):
		code = "ERR_FORBIDDEN"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    code,
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// JWTMiddleware
// ──────────────────────────────────────────────────────────────────────────────

// JWTMiddleware validates the Bearer token in the Authorization header.
// On success it stores userID (uuid.UUID) and role (domain.UserRole) in the
// gin context.
func JWTMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortAuth(c, http.StatusUnauthorized, domain.ErrUnauthorized)
			return
		}

		claims, err := tokens.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, err)
			return
		}

		// ParseAccessToken has already checked the subject is a UUID.
		c.Set(CtxUserID, uuid.MustParse(claims.Subject))
		c.Set(CtxRole, domain.UserRole(claims.Role))
		c.Next()
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Role gates: place after JWTMiddleware
// ──────────────────────────────────────────────────────────────────────────────

// RequireRole lets the request through when allow accepts the caller's role.
func RequireRole(allow func(domain.UserRole) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allow(GetRole(c)) {
			abortAuth(c, http.StatusForbidden, domain.ErrForbidden)
			return
		}
		c.Next()
	}
}

// BackofficeMiddleware admits admin, ops, and readonly callers.
func BackofficeMiddleware() gin.HandlerFunc {
	return RequireRole(domain.UserRole.CanAccessBackoffice)
}

// OperatorMiddleware admits callers allowed to change the catalog or outcomes.
func OperatorMiddleware() gin.HandlerFunc {
	return RequireRole(domain.UserRole.CanOverride)
}

// ──────────────────────────────────────────────────────────────────────────────
// Context accessors
// ──────────────────────────────────────────────────────────────────────────────

// GetUserID retrieves the authenticated user's UUID from the gin context.
// Returns uuid.Nil if the middleware was not applied.
func GetUserID(c *gin.Context) uuid.UUID {
	v, exists := c.Get(CtxUserID)
	if !exists {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// GetRole retrieves the authenticated caller's role from the gin context.
func GetRole(c *gin.Context) domain.UserRole {
	v, _ := c.Get(CtxRole)
	r, _ := v.(domain.UserRole)
	return r
}
