package app

import (
	"quiz_analytics_service/internal/config"
	"quiz_analytics_service/internal/middleware"
	"quiz_analytics_service/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.POST("/analytics/quiz/submit", c.analytics.SubmitQuiz)
	}
}
