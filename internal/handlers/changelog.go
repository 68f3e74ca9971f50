package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tracklane/tracklane-backend/internal/services"
	"github.com/tracklane/tracklane-backend/pkg/utils"
)

type ChangelogHandler struct {
	changelog *services.ChangelogService
}

func NewChangelogHandler(changelog *services.ChangelogService) *ChangelogHandler {
	return &ChangelogHandler{changelog: changelog}
}

// List GET /changelogs
func (h *ChangelogHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, appErr := h.changelog.List(userID, limit)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changelogs": entries})
}

// UnreadCount GET /changelogs/unread-count
func (h *ChangelogHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	count, appErr := h.changelog.UnreadCount(userID)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkRead PUT /changelogs/:id/read
func (h *ChangelogHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if !utils.IsUUID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid changelog id"})
		return
	}

	if appErr := h.changelog.MarkRead(userID, id); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Marked as read"})
}

// MarkAllRead PUT /changelogs/read-all
func (h *ChangelogHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if appErr := h.changelog.MarkAllRead(userID); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All marked as read"})
}

// Delete DELETE /changelogs/:id
func (h *ChangelogHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if !utils.IsUUID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid changelog id"})
		return
	}

	if appErr := h.changelog.Delete(userID, id); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Changelog deleted"})
}
