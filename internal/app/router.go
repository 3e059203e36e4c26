package app

import (
	"gorm.io/gorm"

	httpserver "github.com/yungbote/riskreview-backend/internal/http"
	httpH "github.com/yungbote/riskreview-backend/internal/http/handlers"
	httpMW "github.com/yungbote/riskreview-backend/internal/http/middleware"
	"github.com/yungbote/riskreview-backend/internal/observability"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

func wireServer(db *gorm.DB, log *logger.Logger, cfg Config, svc Services, metrics *observability.Metrics, serviceName string) *httpserver.Server {
	log.Info("Wiring HTTP server...")
	return httpserver.NewServer(":"+cfg.Port, httpserver.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.CORSOrigins,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, svc.Auth),
		ReviewHandler:   httpH.NewReviewHandler(log, svc.Reviews, cfg.Pipeline.MaxDocumentBytes),
		FeedbackHandler: httpH.NewFeedbackHandler(log, svc.Feedback),
		CorpusHandler:   httpH.NewCorpusHandler(log, svc.Corpus),
		StatsHandler:    httpH.NewStatsHandler(svc.Stats),
		HealthHandler:   httpH.NewHealthHandler(db),
	})
}
