package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/launchkit/identity/config"
	"github.com/launchkit/identity/internal/handler"
	"github.com/launchkit/identity/internal/middleware"
)

type Router struct {
	authHandler   *handler.AuthHandler
	healthHandler *handler.HealthHandler

	jwtMw  *middleware.JWTMiddleware
	Config *config.Config
}

func NewRouter(
	auth *handler.AuthHandler,
	health *handler.HealthHandler,
	jwtMw *middleware.JWTMiddleware,
	config *config.Config,
) *Router {
	return &Router{
		authHandler:   auth,
		healthHandler: health,
		jwtMw:         jwtMw,
		Config:        config,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	if r.Config.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestContextMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.RecoveryMiddleware())
	router.Use(middleware.CORS())

	api := router.Group("/api")
	{
		api.GET("/health", r.healthHandler.HealthCheck)

		auth := api.Group("/auth")
		auth.Use(middleware.RateLimit(r.Config.RateLimit.Request, time.Duration(r.Config.RateLimit.Duration)*time.Second))
		r.authRoutes(auth)
	}

	return router
}
