package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/riskreview-backend/internal/clients/redis"
	"github.com/yungbote/riskreview-backend/internal/data/repos"
	"github.com/yungbote/riskreview-backend/internal/data/repos/testutil"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/ctxutil"
	"github.com/yungbote/riskreview-backend/internal/services"
)

type stubModel struct{}

func (stubModel) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubModel) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	return map[string]any{"risks": []any{
		map[string]any{
			"risk_level":  "High",
			"title":       "Local registration required",
			"description": "Bidders must be registered in the city.",
			"location":    "registered in the city",
		},
	}}, nil
}

func (stubModel) EmbedModel() string { return "stub" }

func TestWiredPipelineCompletesSubmission(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cfg := defaultConfig()

	clients := Clients{
		OpenAI:      stubModel{},
		RateLimiter: redis.NewRateLimiter(nil, "review:submit", cfg.Pipeline.SubmissionsPerHour, 0),
	}
	svc := wireServices(db, log, cfg, repos.NewSet(db, log), clients, nil)

	owner := uuid.New()
	ctx := ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: owner})
	job, err := svc.Reviews.Submit(ctx, services.SubmitInput{
		FileName: "tender.txt",
		Text:     "Bidders must be registered in the city before the award.",
	})
	require.NoError(t, err)

	claimed, err := svc.Worker.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, claimed)

	got, err := svc.Reviews.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 1, got.RiskCount)
}
