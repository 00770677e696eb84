package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	jwtpkg "assistant/backend/internal/auth/jwt"
	"assistant/backend/internal/middleware"
	"assistant/backend/internal/service"
)

// AuthHandler serves token refresh and the current user. Users and their
// first token pair come from the create-user command.
type AuthHandler struct {
	jwtManager *jwtpkg.Manager
	users      *service.UserService
	log        *zap.Logger
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(jwtManager *jwtpkg.Manager, users *service.UserService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{jwtManager: jwtManager, users: users, log: log}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// Refresh godoc
// @Summary Exchange a refresh token for a new access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body refreshRequest true "refresh token"
// @Success 200 {object} refreshResponse
// @Failure 401 {object} Response
// @Router /v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, jwtpkg.ErrExpiredToken):
			Unauthorized(c, "refresh token expired")
		case errors.Is(err, jwtpkg.ErrInvalidToken):
			Unauthorized(c, "invalid refresh token")
		default:
			h.log.Error("failed to refresh token", zap.Error(err))
			InternalError(c, MsgInternal)
		}
		return
	}

	Success(c, refreshResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(h.jwtManager.AccessExpiry().Seconds()),
	})
}

// Me godoc
// @Summary Current user
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.User
// @Router /v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.Active(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "user not found")
		return
	}
	Success(c, user)
}
