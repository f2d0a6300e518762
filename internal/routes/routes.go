package routes

import (
	"net/http"

	"taskboard/internal/handlers"
	"taskboard/internal/middleware"
	"taskboard/internal/telemetry"

	"github.com/gin-gonic/gin"
)

// Options carries the ambient pieces the router wraps every request with.
type Options struct {
	Telemetry *telemetry.Provider
	Metrics   *telemetry.Metrics
}

// SetupRoutes builds the router: public login and health, then the
// workspace-scoped API behind JWT and membership checks.
func SetupRoutes(h *handlers.Handler, opts Options) *gin.Engine {
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(middleware.Telemetry(opts.Telemetry, opts.Metrics, h.Log))

	// CORS middleware (for frontend integration)
	ginRouter.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Task board API is running",
		})
	})

	api := ginRouter.Group("/api")
	api.POST("/login", h.Login)

	protected := api.Group("")
	protected.Use(middleware.JWTAuth(h.Tokens))
	protected.GET("/users", h.GetAllUsers)
	protected.GET("/ws", middleware.WorkspaceAccess(h.DB), h.WebSocket)

	ws := protected.Group("/workspaces/:ws")
	ws.Use(middleware.WorkspaceAccess(h.DB))
	ws.GET("/members", h.ListMembers)
	ws.POST("/members", middleware.RequireOwner(), h.AddMember)

	project := ws.Group("/projects/:project")
	edit := middleware.RequireEditor()
	{
		project.GET("/tasks", h.GetTasks)
		project.POST("/tasks", edit, h.CreateTask)
		project.POST("/tasks/generate", edit, h.GenerateTasks)
		project.GET("/tasks/:id", h.GetTaskByID)
		project.PUT("/tasks/:id", edit, h.UpdateTask)
		project.PATCH("/tasks/:id/move", edit, h.MoveTask)
		project.DELETE("/tasks/:id", edit, h.DeleteTask)
		project.GET("/tasks/:id/comments", h.GetComments)
		project.POST("/tasks/:id/comments", edit, h.CreateComment)
	}
	{
		project.GET("/roadmap/phases", h.GetPhases)
		project.POST("/roadmap/phases", edit, h.CreatePhase)
		project.DELETE("/roadmap/phases/:phaseId", edit, h.DeletePhase)
		project.POST("/roadmap/phases/:phaseId/milestones", edit, h.CreateMilestone)
		project.DELETE("/roadmap/milestones/:milestoneId", edit, h.DeleteMilestone)
		project.POST("/roadmap/milestones/:milestoneId/tasks", edit, h.LinkTask)
	}

	return ginRouter
}
