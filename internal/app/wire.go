package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/topicgen-backend/internal/data/db"
	"github.com/yungbote/topicgen-backend/internal/data/repos"
	apphttp "github.com/yungbote/topicgen-backend/internal/http"
	httpH "github.com/yungbote/topicgen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/topicgen-backend/internal/http/middleware"
	"github.com/yungbote/topicgen-backend/internal/normalization"
	"github.com/yungbote/topicgen-backend/internal/observability"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
	"github.com/yungbote/topicgen-backend/internal/services"
)

type Repos struct {
	Job      repos.JobRepo
	Progress repos.ProgressRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Job:      repos.NewJobRepo(db, log),
		Progress: repos.NewProgressRepo(db, log),
	}
}

type Services struct {
	Jobs     services.JobService
	Progress services.ProgressService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, c Clients, m *observability.Metrics) Services {
	log.Info("Wiring services...")
	return Services{
		Jobs: services.NewJobService(
			db,
			log,
			r.Job,
			r.Progress,
			c.Dispatcher,
			normalization.New(cfg.NormalizeOptions()),
			c.JobCache,
			m,
			services.JobServiceConfig{
				DispatchTimeout: cfg.Workflow.DispatchTimeout,
				CallbackURL:     cfg.Workflow.CallbackURL,
			},
		),
		Progress: services.NewProgressService(log, r.Job, r.Progress, m),
	}
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Job      *httpH.JobHandler
	Progress *httpH.ProgressHandler
	Callback *httpH.CallbackHandler
}

func wireHandlers(log *logger.Logger, s Services, store *db.Service) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(map[string]httpH.Pinger{"db": store}),
		Job:      httpH.NewJobHandler(s.Jobs),
		Progress: httpH.NewProgressHandler(s.Progress),
		Callback: httpH.NewCallbackHandler(log, s.Jobs),
	}
}

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecret),
	}
}

func wireServer(log *logger.Logger, cfg Config, h Handlers, mw Middleware, m *observability.Metrics) *apphttp.Server {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		Metrics:         m,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.CORSOrigins,
		CallbackSecret:  cfg.Workflow.CallbackSecret,
		AuthMiddleware:  mw.Auth,
		JobHandler:      h.Job,
		ProgressHandler: h.Progress,
		CallbackHandler: h.Callback,
		HealthHandler:   h.Health,
	}, cfg.Addr())
}
