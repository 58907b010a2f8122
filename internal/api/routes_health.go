package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/handlers"
	"github.com/charlesng35/taskhub/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, manager *monitoring.HealthManager) {
	ready := handlers.Readiness(manager)
	r.GET("/health", ready)
	r.GET("/api/health", ready)
	r.GET("/health/live", handlers.Liveness())
}
