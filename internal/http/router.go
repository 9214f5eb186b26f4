package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/topicgen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/topicgen-backend/internal/http/middleware"
	"github.com/yungbote/topicgen-backend/internal/observability"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	CORSOrigins    []string
	CallbackSecret string

	AuthMiddleware *httpMW.AuthMiddleware

	JobHandler      *httpH.JobHandler
	ProgressHandler *httpH.ProgressHandler
	CallbackHandler *httpH.CallbackHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")

	// Workflow callbacks authenticate with the shared secret, not a user token.
	if cfg.CallbackHandler != nil {
		cb := api.Group("/", httpMW.CallbackSecret(cfg.CallbackSecret))
		cb.POST("/callbacks/workflow", cfg.CallbackHandler.WorkflowCallback)
		cb.POST("/search/callback", cfg.CallbackHandler.WorkflowCallback)
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Jobs
		if cfg.JobHandler != nil {
			protected.POST("/jobs", cfg.JobHandler.CreateJob)
			protected.GET("/jobs", cfg.JobHandler.ListJobs)
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
			protected.DELETE("/jobs/:id", cfg.JobHandler.DeleteJob)
		}

		// Progress
		if cfg.ProgressHandler != nil {
			protected.GET("/progress/:jobId", cfg.ProgressHandler.GetProgress)
			protected.PUT("/progress", cfg.ProgressHandler.SetProgress)
			protected.POST("/progress", cfg.ProgressHandler.SetProgress)
			protected.DELETE("/progress/:jobId", cfg.ProgressHandler.DeleteProgress)
		}
	}

	return r
}
