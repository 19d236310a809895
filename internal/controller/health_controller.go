package controller

import (
	"net/http"

	"quiz_analytics_service/internal/util"
	"quiz_analytics_service/pkg/broker"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Broker *broker.Conn
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, conn *broker.Conn) *HealthController {
	return &HealthController{DB: db, Redis: rdb, Broker: conn}
}

// @Summary Health check
// @Description Reports service and dependency status
// @Tags system
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}

	if err := sqlDB.Ping(); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	redisStatus := "up"
	if err := c.Redis.Ping(ctx.Request.Context()).Err(); err != nil {
		redisStatus = "down"
	}

	brokerStatus := "up"
	if c.Broker.IsClosed() {
		brokerStatus = "down"
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"database": "up",
			"redis":    redisStatus,
			"broker":   brokerStatus,
		},
	})
}
