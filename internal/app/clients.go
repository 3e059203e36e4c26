package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/riskreview-backend/internal/clients/redis"
	"github.com/yungbote/riskreview-backend/internal/observability"
	"github.com/yungbote/riskreview-backend/internal/platform/envutil"
	"github.com/yungbote/riskreview-backend/internal/platform/gcs"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
	"github.com/yungbote/riskreview-backend/internal/platform/openai"
)

type Clients struct {
	Redis       *goredis.Client
	JobBus      redis.JobBus
	RateLimiter redis.RateLimiter
	OpenAI      openai.Client
	Documents   gcs.DocumentSource
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis is optional; without it events are dropped and rate limits are
	// counted per process.
	if envutil.Set("REDIS_ADDR") {
		rdb, err := redis.NewClient(ctx)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		bus, err := redis.NewJobBus(log, rdb)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis job bus: %w", err)
		}
		out.Redis, out.JobBus = rdb, bus
	} else {
		log.Warn("REDIS_ADDR not set; job events disabled, rate limiting is per process")
	}
	out.RateLimiter = redis.NewRateLimiter(out.Redis, "review:submit", cfg.Pipeline.SubmissionsPerHour, 0)

	// OpenAI
	client, err := openai.NewClient(log, metrics)
	if err != nil {
		out.Close()
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	out.OpenAI = client

	// Gcs
	if cfg.GCSEnabled {
		docs, err := gcs.NewDocumentSource(ctx, log, cfg.Pipeline.MaxDocumentBytes)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init document source: %w", err)
		}
		out.Documents = docs
	}
	return out, nil
}

func (c Clients) Close() {
	if c.Documents != nil {
		_ = c.Documents.Close()
	}
	if c.JobBus != nil {
		_ = c.JobBus.Close()
	} else if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
