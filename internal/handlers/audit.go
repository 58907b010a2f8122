package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/services"
	"github.com/charlesng35/taskhub/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/audit
//
// Callers only ever see their own activity.
func (h *AuditHandler) List(c *gin.Context) {
	filters := services.AuditFilters{
		ActorID:    actorID(c),
		Action:     c.Query("action"),
		Resource:   c.Query("resource"),
		ResourceID: c.Query("resource_id"),
		Limit:      parseIntQuery(c, "limit", 100),
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}

	logs, err := h.svc.List(requestContext(c), filters)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, logs)
}
