package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/recruitq/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(deps))

	jobHandler := handler.NewJobHandler(deps)
	eventHandler := handler.NewEventHandler(deps)
	candidateHandler := handler.NewCandidateHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/imports - Queue a candidate import
		v1.POST("/imports", jobHandler.CreateImport)

		// POST /api/v1/positions/:position_id/market-research - Queue a deduplicated research refresh
		v1.POST("/positions/:position_id/market-research", jobHandler.RefreshResearch)

		jobs := v1.Group("/jobs")
		{
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		v1.GET("/queue/stats", jobHandler.QueueStats)

		// GET /api/v1/projects/:project_id/candidates - Candidates imported into a project
		v1.GET("/projects/:project_id/candidates", candidateHandler.ListCandidates)

		// GET /api/v1/events - Realtime job events over a websocket
		v1.GET("/events", eventHandler.Stream)
	}

	return r
}

func healthHandler(deps *handler.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := deps.DB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": deps.ServiceName,
				"error":   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": deps.ServiceName,
			"queue":   deps.Jobs.Stats(ctx),
			"events": gin.H{
				"subscribers": deps.Events.Subscribers(),
				"published":   deps.Events.Published(),
				"dropped":     deps.Events.Dropped(),
			},
		})
	}
}
