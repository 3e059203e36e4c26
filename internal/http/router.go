package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/riskreview-backend/internal/http/handlers"
	httpMW "github.com/yungbote/riskreview-backend/internal/http/middleware"
	"github.com/yungbote/riskreview-backend/internal/observability"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware

	ReviewHandler   *httpH.ReviewHandler
	FeedbackHandler *httpH.FeedbackHandler
	CorpusHandler   *httpH.CorpusHandler
	StatsHandler    *httpH.StatsHandler
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
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Reviews
	if cfg.ReviewHandler != nil {
		api.POST("/reviews", cfg.ReviewHandler.Submit)
		api.GET("/reviews", cfg.ReviewHandler.List)
		api.GET("/reviews/:id", cfg.ReviewHandler.Get)
		api.GET("/reviews/:id/status", cfg.ReviewHandler.GetStatus)
	}

	// Corpus
	if cfg.CorpusHandler != nil {
		api.GET("/corpus/search", cfg.CorpusHandler.Search)
	}

	admin := api.Group("/")
	if cfg.AuthMiddleware != nil {
		admin.Use(cfg.AuthMiddleware.RequireAdmin())
	}
	{
		if cfg.ReviewHandler != nil {
			admin.POST("/reviews/:id/ignore", cfg.ReviewHandler.Ignore)
		}
		if cfg.FeedbackHandler != nil {
			admin.POST("/risks/:id/feedback", cfg.FeedbackHandler.Submit)
			admin.GET("/risks/:id/feedback", cfg.FeedbackHandler.ListForRisk)
			admin.GET("/feedback", cfg.FeedbackHandler.List)
		}
		if cfg.StatsHandler != nil {
			admin.GET("/admin/stats", cfg.StatsHandler.Get)
		}
	}

	return r
}
