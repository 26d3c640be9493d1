package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/launchkit/identity/internal/constants"
	"github.com/launchkit/identity/internal/service"
	ctxutil "github.com/launchkit/identity/pkg/context"
	"github.com/launchkit/identity/pkg/logger"
	"go.uber.org/zap"
)

// Gin context keys populated by RequireAuth
const (
	CtxUserID = "user_id"
	CtxEmail  = "email"
	CtxRole   = "role"
)

type JWTMiddleware struct {
	jwtService *service.JWTService
}

func NewJWTMiddleware(jwtService *service.JWTService) *JWTMiddleware {
	return &JWTMiddleware{
		jwtService: jwtService,
	}
}

// RequireAuth validates the bearer access token and sets the caller
// identity in the request context. Validity is signature plus expiry only;
// there is no server-side session lookup. Every failure mode returns the
// same 401 payload.
func (m *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.GetLogger().Warn("Missing Authorization header",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))
			abortUnauthorized(c)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			logger.GetLogger().Warn("Invalid Authorization header format",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))
			abortUnauthorized(c)
			return
		}

		claims, err := m.jwtService.ValidateToken(tokenParts[1])
		if err != nil {
			// The failure kind is logged but never exposed
			logger.GetLogger().Warn("Access token rejected",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Error(err))
			abortUnauthorized(c)
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxEmail, claims.Email)
		c.Set(CtxRole, claims.Role)

		ctx := ctxutil.WithUserID(c.Request.Context(), claims.UserID.String())
		c.Request = c.Request.WithContext(ctx)

		logger.GetLogger().Debug("User authenticated successfully",
			zap.String("user_id", claims.UserID.String()),
			zap.String("path", c.Request.URL.Path))

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("UNAUTHORIZED", "unauthorized"))
	c.Abort()
}
