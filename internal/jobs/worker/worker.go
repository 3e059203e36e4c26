package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/riskreview-backend/internal/data/repos"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/jobs/runtime"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
	"github.com/yungbote/riskreview-backend/internal/services"
)

type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	StaleAfter        time.Duration
	HeartbeatInterval time.Duration
	// MaxAttempts bounds how often a job is claimed; a job reclaimed more
	// often than this is failed instead of run again.
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		PollInterval:      time.Second,
		StaleAfter:        2 * time.Minute,
		HeartbeatInterval: 20 * time.Second,
		MaxAttempts:       3,
	}
}

type Metrics interface {
	WorkerBusy(delta float64)
	ObserveJobFinished(status, errorKind string, d time.Duration)
}

type Worker struct {
	db      *gorm.DB
	log     *logger.Logger
	jobs    repos.ReviewJobRepo
	risks   repos.ReviewRiskRepo
	handler runtime.Handler
	notify  services.JobNotifier
	metrics Metrics
	cfg     Config
	wg      sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, jobs repos.ReviewJobRepo, risks repos.ReviewRiskRepo, handler runtime.Handler, notify services.JobNotifier, metrics Metrics, cfg Config) *Worker {
	def := DefaultConfig()
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.HeartbeatInterval <= 0 || cfg.HeartbeatInterval >= cfg.StaleAfter {
		cfg.HeartbeatInterval = cfg.StaleAfter / 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Worker{
		db:      db,
		log:     baseLog.With("component", "ReviewWorker"),
		jobs:    jobs,
		risks:   risks,
		handler: handler,
		notify:  notify,
		metrics: metrics,
		cfg:     cfg,
	}
}

// Start launches the pool. Loops exit when ctx is done; Wait blocks until
// they have.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting review worker pool", "concurrency", w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// RunOnce claims at most one runnable job and runs it to completion. It
// reports whether a job was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.StaleAfter)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.runJob(ctx, job)
	return true, nil
}

func (w *Worker) runJob(ctx context.Context, job *types.ReviewJob) {
	log := w.log.With("job_id", job.ID.String(), "attempt", job.Attempts)
	jc := runtime.NewContext(ctx, w.db, job, w.jobs, w.risks, w.notify)
	claimed := time.Now()

	if w.metrics != nil {
		w.metrics.WorkerBusy(1)
		defer w.metrics.WorkerBusy(-1)
	}

	if job.Attempts > w.cfg.MaxAttempts {
		log.Warn("job exceeded max attempts", "max_attempts", w.cfg.MaxAttempts)
		w.fail(jc, log, fmt.Sprintf("review abandoned after %d attempts", w.cfg.MaxAttempts))
		w.observe(jc, claimed)
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		w.heartbeat(hbCtx, jc)
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Review handler panic", "panic", r)
				w.fail(jc, log, "internal error during review")
			}
		}()
		if runErr := w.handler.Run(jc); runErr != nil {
			if ctx.Err() != nil {
				// Shutdown: leave the row processing for a later reclaim.
				return
			}
			log.Error("Review handler failed", "error", runErr)
			w.fail(jc, log, "internal error during review")
		}
	}()

	stopHeartbeat()
	hb.Wait()
	w.observe(jc, claimed)
}

func (w *Worker) heartbeat(ctx context.Context, jc *runtime.Context) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := jc.Heartbeat(ctx)
			if err != nil && ctx.Err() == nil {
				w.log.Warn("heartbeat failed", "job_id", jc.JobID().String(), "error", err)
			}
			if err == nil && !ok {
				return
			}
		}
	}
}

// fail is the safety net for handlers that did not finish the job themselves.
func (w *Worker) fail(jc *runtime.Context, log *logger.Logger, reason string) {
	if err := jc.Fail(types.ErrorKindFatal, reason); err != nil && !errors.Is(err, runtime.ErrNotProcessing) {
		log.Error("recording job failure failed", "error", err)
	}
}

func (w *Worker) observe(jc *runtime.Context, claimed time.Time) {
	if w.metrics == nil || !types.IsTerminal(jc.Job.Status) {
		return
	}
	w.metrics.ObserveJobFinished(jc.Job.Status, jc.Job.ErrorKind, time.Since(claimed))
}
