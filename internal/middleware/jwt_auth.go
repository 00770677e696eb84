package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"assistant/backend/internal/auth/jwt"
	"assistant/backend/internal/domain"
)

// Context keys set by RequireAuth.
const (
	ContextUserID = "userID"
	ContextEmail  = "email"
)

// UserLookup resolves the user behind a token. It returns an error when the
// user no longer exists or has been deactivated.
type UserLookup interface {
	Active(ctx context.Context, id string) (*domain.User, error)
}

// JWTAuth verifies bearer tokens.
type JWTAuth struct {
	jwtManager *jwt.Manager
	users      UserLookup
	log        *zap.Logger
}

// NewJWTAuth creates the JWT middleware. users may be nil, in which case a
// valid signature is enough.
func NewJWTAuth(jwtManager *jwt.Manager, users UserLookup, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{
		jwtManager: jwtManager,
		users:      users,
		log:        log,
	}
}

// RequireAuth rejects requests without a valid access token.
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := ja.jwtManager.ValidateAccessToken(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
			)
			msg := "invalid token"
			if errors.Is(err, jwt.ErrExpiredToken) {
				msg = "token expired"
			}
			abortWithError(c, http.StatusUnauthorized, msg)
			return
		}

		if ja.users != nil {
			if _, err := ja.users.Active(c.Request.Context(), claims.UserID); err != nil {
				ja.log.Warn("token for unknown or inactive user",
					zap.String("user_id", claims.UserID),
					zap.Error(err),
				)
				abortWithError(c, http.StatusUnauthorized, "user is inactive or does not exist")
				return
			}
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)

		c.Next()
	}
}

// UserID returns the authenticated user id, or "" when unauthenticated.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// extractToken reads the Authorization header, then the access_token cookie.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}

	return ""
}

// abortWithError writes the {code, msg} envelope and stops the chain.
func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code": status,
		"msg":  msg,
	})
}
