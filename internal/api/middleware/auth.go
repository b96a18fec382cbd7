package middleware

import (
	"net/http"
	"strings"

	"github.com/evetabi/betengine/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CtxUserID is the gin.Context key holding the authenticated user's UUID.
const CtxUserID = "userID"

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	ParseUserID(token string) (uuid.UUID, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// JWTMiddleware
// ──────────────────────────────────────────────────────────────────────────────

// JWTMiddleware validates the Bearer token in the Authorization header and
// stores the subject's userID (uuid.UUID) in the gin context.
func JWTMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   domain.ErrUnauthorized.Error(),
				"code":    "ERR_UNAUTHORIZED",
			})
			return
		}

		userID, err := tokens.ParseUserID(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid or expired token",
				"code":    "ERR_TOKEN_INVALID",
			})
			return
		}

		c.Set(CtxUserID, userID)
		c.Next()
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper — extract userID from context (for use in handlers)
// ──────────────────────────────────────────────────────────────────────────────

// GetUserID retrieves the authenticated user's UUID from the gin context.
// Returns uuid.Nil if the middleware was not applied or the value is missing.
func GetUserID(c *gin.Context) uuid.UUID {
	v, exists := c.Get(CtxUserID)
	if !exists {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}
