package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/launchkit/identity/internal/constants"
	"github.com/launchkit/identity/internal/dto"
	apperrors "github.com/launchkit/identity/internal/errors"
	"github.com/launchkit/identity/internal/middleware"
	"github.com/launchkit/identity/internal/service"
	ctxutil "github.com/launchkit/identity/pkg/context"
	"github.com/launchkit/identity/pkg/logger"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register handles account creation
func (h *AuthHandler) Register(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "Register")

	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid register request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("INVALID_INPUT", "invalid request format"))
		return
	}

	response, err := h.authService.Register(ctx, &req)
	if err != nil {
		logger.WarnWithContext(ctx, "Registration failed").
			String("email", req.Email).
			Err(err).
			Log()
		respondError(c, err)
		return
	}

	logger.InfoWithContext(ctx, "User registered").
		String("email", req.Email).
		Log()

	c.JSON(http.StatusCreated, response)
}

// Login handles user authentication
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "Login")

	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid login request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("INVALID_INPUT", "invalid request format"))
		return
	}

	response, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		logger.WarnWithContext(ctx, "Login failed").
			String("email", req.Email).
			Err(err).
			Log()
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// RefreshToken handles refresh token rotation
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "RefreshToken")

	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid refresh token request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("INVALID_INPUT", "invalid request format"))
		return
	}

	response, err := h.authService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		logger.WarnWithContext(ctx, "Token refresh failed").
			Err(err).
			Log()
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Logout revokes the caller's refresh tokens
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "Logout")

	userID, ok := currentUserID(c)
	if !ok {
		logger.WarnWithContext(ctx, "User not found in context during logout").
			Log()
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("UNAUTHORIZED", "unauthorized"))
		return
	}

	if err := h.authService.Logout(ctx, userID); err != nil {
		logger.ErrorWithContext(ctx, "Failed to logout user").
			String("user_id", userID.String()).
			Err(err).
			Log()
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Me resolves the authenticated caller into a profile payload
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := ctxutil.WithOperation(c.Request.Context(), "handler", "Me")

	userID, ok := currentUserID(c)
	if !ok {
		logger.WarnWithContext(ctx, "User not found in context").
			Log()
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("UNAUTHORIZED", "unauthorized"))
		return
	}

	profile, err := h.authService.CurrentUser(ctx, userID)
	if err != nil {
		logger.WarnWithContext(ctx, "Failed to resolve current user").
			String("user_id", userID.String()).
			Err(err).
			Log()
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// currentUserID reads the identity set by the JWT middleware
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(middleware.CtxUserID)
	if !exists {
		return uuid.Nil, false
	}

	userID, ok := value.(uuid.UUID)
	if !ok {
		return uuid.Nil, false
	}

	return userID, true
}

// respondError translates a domain error into the HTTP payload. Only the
// domain code and message leave the process; wrapped detail stays in logs.
func respondError(c *gin.Context, err error) {
	status := apperrors.ToHTTPStatus(err)
	c.JSON(status, constants.BuildErrorResponse(apperrors.GetErrorCode(err), apperrors.GetErrorMessage(err)))
}
