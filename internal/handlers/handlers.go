package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/tracklane/tracklane-backend/pkg/errors"
)

// currentUserID reads the authenticated user id set by the auth
// middleware.
func currentUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID.(string), true
}

// fail writes the typed service failure as a JSON response.
func fail(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.Status(), gin.H{"error": err.Message, "kind": err.Kind})
}
