package router

import "github.com/gin-gonic/gin"

func (r *Router) authRoutes(auth *gin.RouterGroup) {
	// Public routes (no authentication required)
	auth.POST("/register", r.authHandler.Register)
	auth.POST("/login", r.authHandler.Login)
	auth.POST("/refresh", r.authHandler.RefreshToken)

	// Protected routes (bearer access token required)
	protected := auth.Group("")
	protected.Use(r.jwtMw.RequireAuth())
	{
		protected.POST("/logout", r.authHandler.Logout)
		protected.GET("/me", r.authHandler.Me)
	}
}
