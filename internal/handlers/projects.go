package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/tracklane/tracklane-backend/internal/services"
)

type ProjectHandler struct {
	projects *services.ProjectService
	updates  *services.UpdateService
}

func NewProjectHandler(projects *services.ProjectService, updates *services.UpdateService) *ProjectHandler {
	return &ProjectHandler{projects: projects, updates: updates}
}

// Create POST /projects
func (h *ProjectHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var in services.ProjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	project, appErr := h.projects.CreateProject(userID, in)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

// List GET /projects
func (h *ProjectHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	projects, appErr := h.projects.ListProjects(userID)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// Get GET /projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	project, appErr := h.projects.GetProject(userID, c.Param("id"))
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// Edit PATCH /projects/:id
func (h *ProjectHandler) Edit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var in services.ProjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	project, appErr := h.projects.EditProject(userID, c.Param("id"), in)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// Delete DELETE /projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if appErr := h.projects.DeleteProject(userID, c.Param("id")); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project deleted"})
}

// UploadIcon POST /projects/:id/icon
func (h *ProjectHandler) UploadIcon(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("icon")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No icon file found"})
		return
	}
	defer file.Close()

	url, appErr := h.projects.SetIcon(userID, c.Param("id"),
		filepath.Ext(header.Filename), header.Header.Get("Content-Type"), file)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"icon": url})
}

// Stats GET /projects/:id/stats
func (h *ProjectHandler) Stats(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	projectID := c.Param("id")

	// Access check rides on GetProject
	if _, appErr := h.projects.GetProject(userID, projectID); appErr != nil {
		fail(c, appErr)
		return
	}

	total, appErr := h.updates.TotalDevelopmentDays(projectID)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	average, appErr := h.updates.AverageDevelopmentTime(projectID)
	if appErr != nil {
		fail(c, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalDevelopmentDays":   total,
		"averageDevelopmentTime": average,
	})
}
