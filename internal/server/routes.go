package server

import (
	"github.com/bk-med/kanban/internal/handlers"
	"github.com/bk-med/kanban/internal/middleware"

	"github.com/gin-gonic/gin"
)

type routeSet struct {
	authenticate gin.HandlerFunc
	limiter      *middleware.RateLimiter

	auth     *handlers.AuthHandler
	projects *handlers.ProjectHandler
	tasks    *handlers.TaskHandler
	comments *handlers.CommentHandler
	admin    *handlers.AdminHandler
}

func registerRoutes(r gin.IRouter, h routeSet) {
	auth := r.Group("/auth")
	if h.limiter != nil {
		auth.Use(h.limiter.Middleware())
	}
	auth.POST("/register", h.auth.Register)
	auth.POST("/login", h.auth.Login)
	auth.POST("/refresh", h.auth.Refresh)
	auth.POST("/logout", h.auth.Logout)
	auth.GET("/me", h.authenticate, h.auth.Me)
	auth.PATCH("/me", h.authenticate, h.auth.UpdateMe)

	api := r.Group("/", h.authenticate)

	projects := api.Group("/projects")
	projects.GET("", h.projects.ListProjects)
	projects.POST("", h.projects.CreateProject)
	projects.GET("/:id", h.projects.GetProject)
	projects.PUT("/:id", h.projects.UpdateProject)
	projects.PATCH("/:id", h.projects.UpdateProject)
	projects.DELETE("/:id", h.projects.DeleteProject)
	projects.POST("/:id/members", h.projects.AddMember)
	projects.DELETE("/:id/members/:userID", h.projects.RemoveMember)
	projects.GET("/:id/stats", h.projects.Stats)
	projects.GET("/:id/tasks", h.tasks.ListTasks)
	projects.POST("/:id/tasks", h.tasks.CreateTask)

	tasks := api.Group("/tasks")
	tasks.GET("/:id", h.tasks.GetTask)
	tasks.PUT("/:id", h.tasks.UpdateTask)
	tasks.PATCH("/:id", h.tasks.UpdateTask)
	tasks.DELETE("/:id", h.tasks.DeleteTask)
	tasks.GET("/:id/comments", h.comments.ListComments)
	tasks.POST("/:id/comments", h.comments.CreateComment)
	tasks.GET("/:id/logs", h.comments.ListActivity)

	comments := api.Group("/comments")
	comments.PATCH("/:id", h.comments.UpdateComment)
	comments.PUT("/:id", h.comments.UpdateComment)
	comments.DELETE("/:id", h.comments.DeleteComment)

	admin := api.Group("/admin", middleware.RequireAdmin())
	admin.GET("/users", h.admin.ListUsers)
	admin.POST("/users", h.admin.CreateUser)
	admin.GET("/users/:id", h.admin.GetUser)
	admin.PUT("/users/:id", h.admin.UpdateUser)
	admin.PATCH("/users/:id", h.admin.UpdateUser)
	admin.DELETE("/users/:id", h.admin.DeleteUser)

	admin.GET("/projects", h.admin.ListProjects)
	admin.POST("/projects", h.projects.CreateProject)
	admin.GET("/projects/:id", h.projects.GetProject)
	admin.PUT("/projects/:id", h.projects.UpdateProject)
	admin.PATCH("/projects/:id", h.projects.UpdateProject)
	admin.DELETE("/projects/:id", h.projects.DeleteProject)

	admin.GET("/tasks", h.admin.ListTasks)
	admin.POST("/tasks", h.admin.CreateTask)
	admin.GET("/tasks/:id", h.tasks.GetTask)
	admin.PUT("/tasks/:id", h.tasks.UpdateTask)
	admin.PATCH("/tasks/:id", h.tasks.UpdateTask)
	admin.DELETE("/tasks/:id", h.tasks.DeleteTask)
}
