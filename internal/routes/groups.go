package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tracklane/tracklane-backend/internal/handlers"
)

func registerGroupRoutes(r gin.IRouter, h *handlers.GroupHandler) {
	groups := r.Group("/groups")
	{
		groups.POST("", h.Create)
		groups.GET("", h.List)
		groups.GET("/:id", h.Get)
		groups.PATCH("/:id", h.Edit)
		groups.DELETE("/:id", h.Delete)
		groups.POST("/:id/logo", h.UploadLogo)

		groups.GET("/:id/members/candidates", h.CandidateAdmins)
		groups.PATCH("/:id/members/:userId/role", h.ChangeRole)
		groups.DELETE("/:id/members/:userId", h.RemoveMember)

		groups.POST("/:id/invitation/accept", h.AcceptInvitation)
		groups.POST("/:id/invitation/decline", h.DeclineInvitation)
		groups.POST("/:id/leave", h.Leave)
	}
}
