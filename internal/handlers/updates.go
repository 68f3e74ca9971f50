package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tracklane/tracklane-backend/internal/services"
)

type UpdateHandler struct {
	updates *services.UpdateService
}

func NewUpdateHandler(updates *services.UpdateService) *UpdateHandler {
	return &UpdateHandler{updates: updates}
}

type scheduleRequest struct {
	TargetVersion string   `json:"targetVersion" binding:"required"`
	Notes         []string `json:"notes"`
}

// Schedule POST /projects/:id/updates
func (h *UpdateHandler) Schedule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	update, appErr := h.updates.Schedule(userID, c.Param("id"), req.TargetVersion, req.Notes)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"update": update})
}

// Start PATCH /updates/:id/start
func (h *UpdateHandler) Start(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if appErr := h.updates.Start(userID, c.Param("id")); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Update started"})
}

// Publish PATCH /updates/:id/publish
func (h *UpdateHandler) Publish(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if appErr := h.updates.Publish(userID, c.Param("id")); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Update published"})
}

// Delete DELETE /updates/:id
func (h *UpdateHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if appErr := h.updates.Delete(userID, c.Param("id")); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Update deleted"})
}
