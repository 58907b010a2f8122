package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/taskhub/internal/auth"
	"github.com/charlesng35/taskhub/internal/realtime"
	"github.com/charlesng35/taskhub/pkg/errors"
	"github.com/charlesng35/taskhub/pkg/response"
)

// RealtimeHandler upgrades authenticated requests onto the notification hub.
type RealtimeHandler struct {
	hub *realtime.Hub
	jwt *iauth.JWTService
}

func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, jwt: jwt}
}

// GET /api/ws
//
// Browsers cannot set headers on a WebSocket handshake, so the access token
// may also arrive as the access_token query parameter.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	token := strings.TrimSpace(c.Query("access_token"))
	if authz := c.GetHeader("Authorization"); token == "" && len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		token = strings.TrimSpace(authz[7:])
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil || strings.TrimSpace(claims.UserID) == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	h.hub.Serve(claims.UserID, c.Writer, c.Request)
}
