package router

import (
	"github.com/gin-gonic/gin"

	"github.com/resumatch/resumatch/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// Health check endpoint
	r.GET("/health", jobHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a resume and job description
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Poll job status and results
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/cancel - Request cancellation
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)

			// POST /api/v1/jobs/:job_id/retry - Requeue a failed job
			jobs.POST("/:job_id/retry", jobHandler.RetryJob)
		}
	}

	return r
}
