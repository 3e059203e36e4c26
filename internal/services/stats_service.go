package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/riskreview-backend/internal/data/repos"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

type Stats struct {
	TotalFiles      int64 `json:"totalFiles"`
	PendingFiles    int64 `json:"pendingFiles"`
	ProcessingFiles int64 `json:"processingFiles"`
	CompletedFiles  int64 `json:"completedFiles"`
	FailedFiles     int64 `json:"failedFiles"`
	IgnoredFiles    int64 `json:"ignoredFiles"`
	TotalRisks      int64 `json:"totalRisks"`
	ActiveUsers     int64 `json:"activeUsers"`
}

type StatsService interface {
	Get(ctx context.Context) (*Stats, error)
}

type statsService struct {
	log  *logger.Logger
	jobs repos.ReviewJobRepo
}

func NewStatsService(baseLog *logger.Logger, jobs repos.ReviewJobRepo) StatsService {
	return &statsService{log: baseLog.With("service", "StatsService"), jobs: jobs}
}

func (s *statsService) Get(ctx context.Context) (*Stats, error) {
	var (
		byStatus map[string]int64
		risks    int64
		users    int64
	)
	g, gctx := errgroup.WithContext(ctx)
	dbc := dbctx.Context{Ctx: gctx}
	g.Go(func() (err error) {
		byStatus, err = s.jobs.CountByStatus(dbc)
		return err
	})
	g.Go(func() (err error) {
		risks, err = s.jobs.SumRiskCount(dbc)
		return err
	})
	g.Go(func() (err error) {
		users, err = s.jobs.CountDistinctOwners(dbc)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Stats{
		PendingFiles:    byStatus[types.StatusPending],
		ProcessingFiles: byStatus[types.StatusProcessing],
		CompletedFiles:  byStatus[types.StatusCompleted],
		FailedFiles:     byStatus[types.StatusFailed],
		IgnoredFiles:    byStatus[types.StatusIgnored],
		TotalRisks:      risks,
		ActiveUsers:     users,
	}
	for _, n := range byStatus {
		out.TotalFiles += n
	}
	return out, nil
}
