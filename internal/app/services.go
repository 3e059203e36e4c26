package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/riskreview-backend/internal/data/repos"
	"github.com/yungbote/riskreview-backend/internal/jobs/worker"
	"github.com/yungbote/riskreview-backend/internal/modules/review/chunker"
	"github.com/yungbote/riskreview-backend/internal/modules/review/controller"
	"github.com/yungbote/riskreview-backend/internal/modules/review/debate"
	"github.com/yungbote/riskreview-backend/internal/modules/review/extractor"
	"github.com/yungbote/riskreview-backend/internal/modules/review/retriever"
	"github.com/yungbote/riskreview-backend/internal/modules/review/screening"
	"github.com/yungbote/riskreview-backend/internal/observability"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
	"github.com/yungbote/riskreview-backend/internal/services"
)

type Services struct {
	Auth     services.AuthService
	Reviews  services.ReviewService
	Feedback services.FeedbackService
	Corpus   services.CorpusService
	Stats    services.StatsService
	Notifier services.JobNotifier

	Retriever  *retriever.Retriever
	Controller *controller.Controller
	Worker     *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet repos.Set, clients Clients, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")
	p := cfg.Pipeline

	var pub services.JobEventPublisher
	if clients.JobBus != nil {
		pub = clients.JobBus
	}
	notifier := services.NewJobNotifier(log, pub)

	rt := retriever.New(reposet.CorpusEntry, clients.OpenAI, retriever.Config{
		CasesPerChunk:           p.CasesPerChunk,
		RegulationsPerChunk:     p.RegulationsPerChunk,
		CaseMinSimilarity:       p.CaseMinSimilarity,
		RegulationMinSimilarity: p.RegulationMinSimilarity,
		CacheTTL:                p.CorpusCacheTTL,
		GuidancePerDocument:     p.GuidancePerDocument,
		GuidanceMinSimilarity:   p.GuidanceMinSimilarity,
		GuidanceSampleRunes:     retriever.DefaultConfig().GuidanceSampleRunes,
	}, log)

	exCfg := extractor.DefaultConfig()
	exCfg.SnippetRunes = p.SnippetRunes
	ex := extractor.New(clients.OpenAI, exCfg)

	ch := chunker.New(chunker.Config{MaxRunes: p.ChunkMaxRunes, Overlap: p.ChunkOverlap, LookBack: p.ChunkLookBack})

	ctlCfg := controller.DefaultConfig()
	ctlCfg.JobTimeout = p.JobTimeout
	ctlCfg.ChunkAttempts = p.ChunkAttempts
	ctlCfg.RetryBase = p.RetryBase
	ctlCfg.Concurrency = p.ChunkConcurrency
	var source controller.DocumentSource
	if clients.Documents != nil {
		source = clients.Documents
	}
	var stages controller.Stages
	if p.ClassifyEnabled {
		stages.Classifier = screening.NewClassifier(clients.OpenAI, 0)
	}
	if p.DebateEnabled {
		dbCfg := debate.DefaultConfig()
		dbCfg.DismissConfidence = p.DismissConfidence
		stages.Panel = debate.New(clients.OpenAI, dbCfg, log)
	}
	if p.RadarEnabled {
		stages.Radar = screening.NewRadar(clients.OpenAI)
	}
	ctl := controller.New(log, ctlCfg, ch, rt, ex, source, metrics, stages)

	w := worker.NewWorker(db, log, reposet.ReviewJob, reposet.ReviewRisk, ctl, notifier, metrics, worker.Config{
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		StaleAfter:   cfg.Worker.StaleAfter,
		MaxAttempts:  cfg.Worker.MaxAttempts,
	})

	return Services{
		Auth: services.NewAuthService(log, cfg.JWTSecretKey),
		Reviews: services.NewReviewService(db, log, reposet.ReviewJob, reposet.ReviewRisk, clients.RateLimiter, notifier, metrics, services.ReviewConfig{
			MaxDocumentBytes:   p.MaxDocumentBytes,
			SubmissionsPerHour: p.SubmissionsPerHour,
			SourceURIEnabled:   clients.Documents != nil,
		}),
		Feedback:   services.NewFeedbackService(log, reposet.ReviewRisk, reposet.RiskFeedback, metrics),
		Corpus:     services.NewCorpusService(log, reposet.CorpusEntry, rt),
		Stats:      services.NewStatsService(log, reposet.ReviewJob),
		Notifier:   notifier,
		Retriever:  rt,
		Controller: ctl,
		Worker:     w,
	}
}
