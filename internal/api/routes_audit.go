package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/handlers"
)

func registerAuditRoutes(api *gin.RouterGroup, h *handlers.AuditHandler) {
	api.GET("/audit", h.List)
}
