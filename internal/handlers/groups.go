package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/tracklane/tracklane-backend/internal/models"
	"github.com/tracklane/tracklane-backend/internal/services"
)

type GroupHandler struct {
	groups *services.GroupService
}

func NewGroupHandler(groups *services.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// Create POST /groups
func (h *GroupHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var in services.GroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	group, appErr := h.groups.CreateGroup(userID, in)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// List GET /groups
func (h *GroupHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	groups, appErr := h.groups.ListGroups(userID)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// Get GET /groups/:id
func (h *GroupHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	group, appErr := h.groups.GetGroup(userID, c.Param("id"))
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// Edit PATCH /groups/:id
func (h *GroupHandler) Edit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var in services.GroupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	group, appErr := h.groups.EditGroup(userID, c.Param("id"), in)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// Delete DELETE /groups/:id
func (h *GroupHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if appErr := h.groups.DeleteGroup(userID, c.Param("id")); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

// UploadLogo POST /groups/:id/logo
func (h *GroupHandler) UploadLogo(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("logo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No logo file found"})
		return
	}
	defer file.Close()

	url, appErr := h.groups.SetLogo(userID, c.Param("id"),
		filepath.Ext(header.Filename), header.Header.Get("Content-Type"), file)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logo": url})
}

type changeRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// ChangeRole PATCH /groups/:id/members/:userId/role
func (h *GroupHandler) ChangeRole(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if appErr := h.groups.ChangeMemberRole(userID, c.Param("id"), c.Param("userId"), req.Role); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Role changed"})
}

// RemoveMember DELETE /groups/:id/members/:userId
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if appErr := h.groups.RemoveMember(userID, c.Param("id"), c.Param("userId")); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

type invitationRequest struct {
	ChangelogID string `json:"changelogId" binding:"required"`
}

// AcceptInvitation POST /groups/:id/invitation/accept
func (h *GroupHandler) AcceptInvitation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req invitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if appErr := h.groups.AcceptInvitation(userID, c.Param("id"), req.ChangelogID); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Invitation accepted"})
}

// DeclineInvitation POST /groups/:id/invitation/decline
func (h *GroupHandler) DeclineInvitation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req invitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if appErr := h.groups.DeclineInvitation(userID, c.Param("id"), req.ChangelogID); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Invitation declined"})
}

type leaveRequest struct {
	NextAdminID string `json:"nextAdminId"`
}

// Leave POST /groups/:id/leave
func (h *GroupHandler) Leave(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req leaveRequest
	// Body is optional: only the sole admin of a non-empty group needs it
	_ = c.ShouldBindJSON(&req)

	if appErr := h.groups.LeaveGroup(userID, c.Param("id"), req.NextAdminID); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left group"})
}

// CandidateAdmins GET /groups/:id/members/candidates
func (h *GroupHandler) CandidateAdmins(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	candidates, appErr := h.groups.CandidateNextAdmins(userID, c.Param("id"))
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}
