package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/riskreview-backend/internal/data/repos/testutil"
	types "github.com/yungbote/riskreview-backend/internal/domain"
)

func TestStatsAggregatesJobs(t *testing.T) {
	db, set := newRepoSet(t)
	svc := NewStatsService(testutil.Logger(t), set.ReviewJob)

	alice, bob := uuid.New(), uuid.New()
	seed := func(owner *uuid.UUID, status string, risks int) {
		job := testutil.SeedJob(t, db, owner, "text")
		require.NoError(t, db.Model(&types.ReviewJob{}).Where("id = ?", job.ID).
			Updates(map[string]interface{}{"status": status, "risk_count": risks}).Error)
	}
	seed(&alice, types.StatusCompleted, 3)
	seed(&alice, types.StatusFailed, 1)
	seed(&bob, types.StatusPending, 0)
	seed(&bob, types.StatusProcessing, 2)
	seed(nil, types.StatusIgnored, 0)

	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Stats{
		TotalFiles:      5,
		PendingFiles:    1,
		ProcessingFiles: 1,
		CompletedFiles:  1,
		FailedFiles:     1,
		IgnoredFiles:    1,
		TotalRisks:      6,
		ActiveUsers:     2,
	}, got)
}

func TestStatsEmpty(t *testing.T) {
	_, set := newRepoSet(t)
	got, err := NewStatsService(testutil.Logger(t), set.ReviewJob).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Stats{}, got)
}
