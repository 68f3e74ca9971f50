package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tracklane/tracklane-backend/internal/handlers"
)

func registerProjectRoutes(r gin.IRouter, p *handlers.ProjectHandler, u *handlers.UpdateHandler, n *handlers.NoteHandler) {
	projects := r.Group("/projects")
	{
		projects.POST("", p.Create)
		projects.GET("", p.List)
		projects.GET("/:id", p.Get)
		projects.PATCH("/:id", p.Edit)
		projects.DELETE("/:id", p.Delete)
		projects.POST("/:id/icon", p.UploadIcon)
		projects.GET("/:id/stats", p.Stats)

		projects.POST("/:id/updates", u.Schedule)
	}

	updates := r.Group("/updates")
	{
		updates.PATCH("/:id/start", u.Start)
		updates.PATCH("/:id/publish", u.Publish)
		updates.DELETE("/:id", u.Delete)

		updates.POST("/:id/notes", n.Add)
	}

	notes := r.Group("/notes")
	{
		notes.PATCH("/:id", n.Edit)
		notes.PATCH("/:id/done", n.MarkDone)
		notes.PATCH("/:id/todo", n.MarkToDo)
		notes.PATCH("/:id/move", n.Move)
		notes.DELETE("/:id", n.Delete)
	}
}
