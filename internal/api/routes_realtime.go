package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/handlers"
)

func registerRealtimeRoutes(r *gin.Engine, h *handlers.RealtimeHandler) {
	if h == nil {
		return
	}
	r.GET("/api/ws", h.Stream)
}
