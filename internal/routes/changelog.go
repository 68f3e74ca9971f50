package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tracklane/tracklane-backend/internal/handlers"
)

func registerChangelogRoutes(r gin.IRouter, h *handlers.ChangelogHandler) {
	changelogs := r.Group("/changelogs")
	{
		changelogs.GET("", h.List)
		changelogs.GET("/unread-count", h.UnreadCount)
		changelogs.PUT("/:id/read", h.MarkRead)
		changelogs.PUT("/read-all", h.MarkAllRead)
		changelogs.DELETE("/:id", h.Delete)
	}
}
