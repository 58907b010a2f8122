package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/handlers"
	"github.com/charlesng35/taskhub/internal/services"
)

func registerTaskRoutes(r *gin.Engine, api *gin.RouterGroup, h *handlers.TaskHandler, limited gin.HandlerFunc) {
	tasks := api.Group("/tasks")
	{
		tasks.POST("", h.Create)
		tasks.GET("", h.List)
		tasks.GET("/:id", h.Get)
		tasks.POST("/:id/subtasks", h.AddSubTask)
		registerItemRoutes(tasks, h, services.KindTask, limited)
	}

	registerItemRoutes(api.Group("/subtasks"), h, services.KindSubTask, limited)

	// Target of the emailed accept/reject links; the token authenticates.
	// GET only previews so mail scanners cannot consume the token.
	r.GET("/tasks/assignments/decide", limited, h.PreviewDecision)
	r.POST("/tasks/assignments/decide", limited, h.Decide)
}

func registerItemRoutes(group *gin.RouterGroup, h *handlers.TaskHandler, kind services.ItemKind, limited gin.HandlerFunc) {
	group.POST("/:id/assignees", limited, h.Assign(kind))
	group.POST("/:id/respond", h.Respond(kind))
	group.POST("/:id/complete", h.Complete(kind))
	group.POST("/:id/close", h.Close(kind))
	group.POST("/:id/archive", h.Archive(kind))
}
