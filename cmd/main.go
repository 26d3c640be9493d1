package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	configs "github.com/launchkit/identity/config"
	"github.com/launchkit/identity/internal/handler"
	"github.com/launchkit/identity/internal/middleware"
	"github.com/launchkit/identity/internal/repository"
	"github.com/launchkit/identity/internal/router"
	"github.com/launchkit/identity/internal/service"
	"github.com/launchkit/identity/pkg/database"
	"github.com/launchkit/identity/pkg/logger"
	"github.com/launchkit/identity/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	config, err := configs.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	if err := logger.InitLogger(config.App.Environment); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	logger.GetLogger().Info("Application starting",
		zap.String("app_name", config.App.Name),
		zap.String("environment", config.App.Environment),
	)

	db, err := database.NewPostgresDB(database.Config{
		Host:            config.Database.Host,
		Port:            config.Database.Port,
		User:            config.Database.User,
		Password:        config.Database.Password,
		Database:        config.Database.Name,
		SSLMode:         config.Database.SSLMode,
		MaxIdleConns:    config.Database.MaxIdleConns,
		MaxOpenConns:    config.Database.MaxOpenConns,
		ConnMaxLifetime: config.Database.ConnMaxLifetime,
		ConnMaxIdleTime: config.Database.ConnMaxIdleTime,
	})
	if err != nil {
		logger.GetLogger().Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB(db)

	if err := database.AutoMigrate(db); err != nil {
		logger.GetLogger().Fatal("Failed to run database migrations", zap.Error(err))
	}
	logger.GetLogger().Info("Database migrated successfully")

	// Redis is optional; a nil client disables the profile cache
	var redisClient *redis.Client
	if config.Redis.Enabled {
		redisClient, err = redis.NewClient(redis.Config{
			Addr:         config.RedisAddress(),
			Password:     config.Redis.Password,
			DB:           config.Redis.Database,
			PoolSize:     config.Redis.PoolSize,
			MinIdleConns: config.Redis.MinIdleConns,
			DialTimeout:  config.Redis.DialTimeout,
			ReadTimeout:  config.Redis.ReadTimeout,
			WriteTimeout: config.Redis.WriteTimeout,
		})
		if err != nil {
			logger.GetLogger().Warn("Redis unavailable, running without profile cache", zap.Error(err))
			redisClient = nil
		}
	}
	defer redisClient.Close()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)

	// Services
	jwtService := service.NewJWTService(config.JWT.Secret, config.JWT.AccessTTL)
	profileCache := service.NewProfileCache(redisClient, config.Redis.ProfileTTL)
	authService := service.NewAuthService(userRepo, tokenRepo, jwtService, config.JWT.RefreshTTL, profileCache)

	// Background sweep of expired refresh tokens
	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go service.NewSweeper(tokenRepo, time.Hour).Run(sweeperCtx)

	// Handlers and middleware
	authHandler := handler.NewAuthHandler(authService)
	healthHandler := handler.NewHealthHandler(db, redisClient)
	jwtMiddleware := middleware.NewJWTMiddleware(jwtService)

	r := router.NewRouter(authHandler, healthHandler, jwtMiddleware, config).SetupRoutes()

	srv := &http.Server{
		Addr:    ":" + config.App.Port,
		Handler: r,
	}

	go func() {
		logger.GetLogger().Info("Server starting",
			zap.String("port", config.App.Port),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.GetLogger().Fatal("Failed to start server",
				zap.Error(err),
				zap.String("port", config.App.Port),
			)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.GetLogger().Info("Shutting down server...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.GetLogger().Error("Server forced to shutdown", zap.Error(err))
	}
}
