package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tracklane/tracklane-backend/internal/services"
)

type NoteHandler struct {
	notes *services.NoteService
}

func NewNoteHandler(notes *services.NoteService) *NoteHandler {
	return &NoteHandler{notes: notes}
}

type noteContentRequest struct {
	Content string `json:"content" binding:"required"`
}

// Add POST /updates/:id/notes
func (h *NoteHandler) Add(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req noteContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	note, appErr := h.notes.Add(userID, c.Param("id"), req.Content)
	if appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"note": note})
}

// Edit PATCH /notes/:id
func (h *NoteHandler) Edit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req noteContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if appErr := h.notes.Edit(userID, c.Param("id"), req.Content); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note updated"})
}

// MarkDone PATCH /notes/:id/done
func (h *NoteHandler) MarkDone(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if appErr := h.notes.MarkDone(userID, c.Param("id")); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note marked as done"})
}

// MarkToDo PATCH /notes/:id/todo
func (h *NoteHandler) MarkToDo(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if appErr := h.notes.MarkToDo(userID, c.Param("id")); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note marked as to-do"})
}

type moveNoteRequest struct {
	FromUpdateID string `json:"fromUpdateId" binding:"required"`
	ToUpdateID   string `json:"toUpdateId" binding:"required"`
}

// Move PATCH /notes/:id/move
func (h *NoteHandler) Move(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req moveNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if appErr := h.notes.Move(userID, c.Param("id"), req.FromUpdateID, req.ToUpdateID); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note moved"})
}

// Delete DELETE /notes/:id
func (h *NoteHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if appErr := h.notes.Delete(userID, c.Param("id")); appErr != nil {
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note deleted"})
}
