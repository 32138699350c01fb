package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kompas/api/internal/models"
	"kompas/api/internal/repository"
	"kompas/api/internal/service"
)

type groupResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	MemberIDs []string  `json:"memberIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toGroupResponse(group models.Group) groupResponse {
	return groupResponse{
		ID:        group.ID,
		Name:      group.Name,
		OwnerID:   group.OwnerID,
		MemberIDs: group.MemberIDs,
		CreatedAt: group.CreatedAt,
		UpdatedAt: group.UpdatedAt,
	}
}

// writeGroupError maps the directory sentinels onto HTTP statuses. Unknown
// errors stay 500 so storage failures are never mistaken for client mistakes.
func writeGroupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyGroupName), errors.Is(err, service.ErrCannotRemoveOwner):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrGroupQuotaExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotGroupOwner), errors.Is(err, service.ErrNotGroupMember):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrGroupNotFound), errors.Is(err, repository.ErrInviteNotFound), errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h HandlerSet) ListGroups(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	groups, err := h.groupService.ListGroups(c.Request.Context(), user.ID)
	if err != nil {
		writeGroupError(c, err)
		return
	}

	resp := make([]groupResponse, 0, len(groups))
	for _, group := range groups {
		resp = append(resp, toGroupResponse(group))
	}

	c.JSON(http.StatusOK, gin.H{
		"groups": resp,
	})
}

type createGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h HandlerSet) CreateGroup(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groupService.CreateGroup(c.Request.Context(), user.ID, req.Name)
	if err != nil {
		writeGroupError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"group": toGroupResponse(group),
	})
}

func (h HandlerSet) GetGroup(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	group, err := h.groupService.GetGroupForMember(c.Request.Context(), user.ID, c.Param("groupId"))
	if err != nil {
		writeGroupError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group": toGroupResponse(group),
	})
}

type renameGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h HandlerSet) RenameGroup(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req renameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groupService.RenameGroup(c.Request.Context(), user.ID, c.Param("groupId"), req.Name)
	if err != nil {
		writeGroupError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group": toGroupResponse(group),
	})
}

func (h HandlerSet) DeleteGroup(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.groupService.DeleteGroup(c.Request.Context(), user.ID, c.Param("groupId")); err != nil {
		writeGroupError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) AddMember(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.groupService.AddMember(c.Request.Context(), user.ID, c.Param("groupId"), c.Param("userId")); err != nil {
		writeGroupError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) RemoveMember(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.groupService.RemoveMember(c.Request.Context(), user.ID, c.Param("groupId"), c.Param("userId")); err != nil {
		writeGroupError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type inviteResponse struct {
	Code      string    `json:"code"`
	GroupID   string    `json:"groupId"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func toInviteResponse(invite models.Invite) inviteResponse {
	return inviteResponse{
		Code:      invite.Code,
		GroupID:   invite.GroupID,
		CreatedBy: invite.CreatedBy,
		CreatedAt: invite.CreatedAt,
		ExpiresAt: invite.ExpiresAt,
	}
}

func (h HandlerSet) CreateInvite(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	invite, err := h.groupService.CreateInvite(c.Request.Context(), user.ID, c.Param("groupId"))
	if err != nil {
		writeGroupError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"invite": toInviteResponse(invite),
	})
}

func (h HandlerSet) ListInvites(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	invites, err := h.groupService.ListInvites(c.Request.Context(), user.ID, c.Param("groupId"))
	if err != nil {
		writeGroupError(c, err)
		return
	}

	resp := make([]inviteResponse, 0, len(invites))
	for _, invite := range invites {
		resp = append(resp, toInviteResponse(invite))
	}

	c.JSON(http.StatusOK, gin.H{
		"invites": resp,
	})
}

func (h HandlerSet) JoinByCode(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	group, err := h.groupService.JoinByCode(c.Request.Context(), user.ID, c.Param("code"))
	if err != nil {
		writeGroupError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group": toGroupResponse(group),
	})
}
