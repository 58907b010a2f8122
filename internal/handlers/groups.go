package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/services"
	"github.com/charlesng35/taskhub/pkg/response"
)

// GroupHandler exposes group membership and invitations.
type GroupHandler struct {
	groups  *services.GroupService
	invites *services.GroupInviteService
}

func NewGroupHandler(groups *services.GroupService, invites *services.GroupInviteService) *GroupHandler {
	return &GroupHandler{groups: groups, invites: invites}
}

type createGroupRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN MEMBER"`
}

type transferOwnershipRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"required"`
}

// POST /api/groups
func (h *GroupHandler) Create(c *gin.Context) {
	var body createGroupRequest
	if !bindAndValidate(c, &body) {
		return
	}

	group, err := h.groups.Create(requestContext(c), actorID(c), services.CreateGroupInput{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, group)
}

// GET /api/groups
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.groups.ListForUser(requestContext(c), actorID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, groups)
}

// GET /api/groups/:id
func (h *GroupHandler) Get(c *gin.Context) {
	group, err := h.groups.Get(requestContext(c), actorID(c), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, group)
}

// GET /api/groups/:id/members
func (h *GroupHandler) Members(c *gin.Context) {
	members, err := h.groups.Members(requestContext(c), actorID(c), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, members)
}

// PATCH /api/groups/:id/members/:userID
func (h *GroupHandler) UpdateRole(c *gin.Context) {
	var body updateRoleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	member, err := h.groups.UpdateMemberRole(requestContext(c), actorID(c), c.Param("id"), c.Param("userID"), models.GroupRole(body.Role))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// DELETE /api/groups/:id/members/:userID
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	if err := h.groups.RemoveMember(requestContext(c), actorID(c), c.Param("id"), c.Param("userID")); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// POST /api/groups/:id/leave
func (h *GroupHandler) Leave(c *gin.Context) {
	if err := h.groups.Leave(requestContext(c), actorID(c), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"left": true})
}

// POST /api/groups/:id/transfer
func (h *GroupHandler) TransferOwnership(c *gin.Context) {
	var body transferOwnershipRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if err := h.groups.TransferOwnership(requestContext(c), actorID(c), c.Param("id"), body.UserID); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"transferred": true})
}

// POST /api/groups/:id/invites
func (h *GroupHandler) Invite(c *gin.Context) {
	var body inviteRequest
	if !bindAndValidate(c, &body) {
		return
	}

	invite, err := h.invites.Invite(requestContext(c), actorID(c), c.Param("id"), body.Email)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, invite)
}

// DELETE /api/groups/:id/invites
func (h *GroupHandler) RevokeInvite(c *gin.Context) {
	var body inviteRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if err := h.invites.RevokeInvite(requestContext(c), actorID(c), c.Param("id"), body.Email); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /groups/invitation/:id/:secret
func (h *GroupHandler) PreviewInvite(c *gin.Context) {
	preview, err := h.invites.Preview(requestContext(c), actorID(c), c.Param("id"), c.Param("secret"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, preview)
}

// POST /groups/invitation/:id/:secret
func (h *GroupHandler) AcceptInvite(c *gin.Context) {
	member, err := h.invites.Accept(requestContext(c), actorID(c), c.Param("id"), c.Param("secret"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}
