package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tracklane/tracklane-backend/internal/handlers"
	"github.com/tracklane/tracklane-backend/internal/middleware"
	"gorm.io/gorm"
)

// Handlers bundles the request handlers wired at startup.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Groups    *handlers.GroupHandler
	Projects  *handlers.ProjectHandler
	Updates   *handlers.UpdateHandler
	Notes     *handlers.NoteHandler
	Changelog *handlers.ChangelogHandler
}

// Register wires every route group onto the router.
func Register(api *gin.RouterGroup, db *gorm.DB, h Handlers) {
	auth := api.Group("/auth")
	auth.Use(middleware.AuthRateLimit())
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.GET("/me", middleware.AuthMiddleware(db), h.Auth.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(db))

	registerGroupRoutes(protected, h.Groups)
	registerProjectRoutes(protected, h.Projects, h.Updates, h.Notes)
	registerChangelogRoutes(protected, h.Changelog)
}
