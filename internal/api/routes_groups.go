package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/handlers"
)

func registerGroupRoutes(r *gin.Engine, api *gin.RouterGroup, h *handlers.GroupHandler, requireAuth, limited gin.HandlerFunc) {
	groups := api.Group("/groups")
	{
		groups.POST("", h.Create)
		groups.GET("", h.List)
		groups.GET("/:id", h.Get)
		groups.GET("/:id/members", h.Members)
		groups.PATCH("/:id/members/:userID", h.UpdateRole)
		groups.DELETE("/:id/members/:userID", h.RemoveMember)
		groups.POST("/:id/leave", h.Leave)
		groups.POST("/:id/transfer", h.TransferOwnership)
		groups.POST("/:id/invites", limited, h.Invite)
		groups.DELETE("/:id/invites", h.RevokeInvite)
	}

	// Target of the emailed invitation link. The invitee must be signed in;
	// GET only previews, POST joins.
	invitation := r.Group("/groups/invitation", requireAuth)
	invitation.GET("/:id/:secret", h.PreviewInvite)
	invitation.POST("/:id/:secret", limited, h.AcceptInvite)
}
