package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/launchkit/identity/internal/constants"
	"github.com/launchkit/identity/internal/dto"
	"github.com/launchkit/identity/pkg/redis"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
}

func NewHealthHandler(db *gorm.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
	}
}

// HealthCheck reports the health of the service and its dependencies.
// Redis is optional; it never flips the overall status.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := dto.HealthCheckResponse{
		Status:    "healthy",
		Version:   constants.AppVersion,
		Timestamp: time.Now(),
		Checks:    make(map[string]dto.HealthCheck),
	}

	dbStatus := h.checkDatabase(ctx)
	response.Checks["database"] = dbStatus
	if dbStatus.Status != "healthy" {
		response.Status = "unhealthy"
	}

	response.Checks["redis"] = h.checkRedis(ctx)

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, response)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) dto.HealthCheck {
	if h.db == nil {
		return dto.HealthCheck{Status: "unhealthy", Message: "database not configured"}
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return dto.HealthCheck{Status: "unhealthy", Message: err.Error()}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return dto.HealthCheck{Status: "unhealthy", Message: err.Error()}
	}

	return dto.HealthCheck{Status: "healthy"}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dto.HealthCheck {
	if !h.redisClient.Enabled() {
		return dto.HealthCheck{Status: "disabled"}
	}

	if err := h.redisClient.Ping(ctx); err != nil {
		return dto.HealthCheck{Status: "unhealthy", Message: err.Error()}
	}

	return dto.HealthCheck{Status: "healthy"}
}
