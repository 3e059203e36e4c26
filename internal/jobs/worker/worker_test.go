package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/yungbote/riskreview-backend/internal/data/repos"
	"github.com/yungbote/riskreview-backend/internal/data/repos/testutil"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/jobs/runtime"
	"github.com/yungbote/riskreview-backend/internal/services"
)

type fakeMetrics struct {
	busy     atomic.Int64
	finished atomic.Int64
	lastKind atomic.Value
}

func (m *fakeMetrics) WorkerBusy(delta float64) { m.busy.Add(int64(delta)) }

func (m *fakeMetrics) ObserveJobFinished(status, errorKind string, d time.Duration) {
	m.finished.Add(1)
	m.lastKind.Store(status + "/" + errorKind)
}

func newWorker(t *testing.T, db *gorm.DB, h runtime.Handler, m Metrics) *Worker {
	t.Helper()
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	return NewWorker(db, log, set.ReviewJob, set.ReviewRisk, h, services.NewJobNotifier(log, nil), m, Config{
		Concurrency:       2,
		PollInterval:      10 * time.Millisecond,
		StaleAfter:        time.Minute,
		HeartbeatInterval: 5 * time.Millisecond,
		MaxAttempts:       3,
	})
}

func reload(t *testing.T, db *gorm.DB, job *types.ReviewJob) *types.ReviewJob {
	t.Helper()
	var got types.ReviewJob
	require.NoError(t, db.Where("id = ?", job.ID).First(&got).Error)
	return &got
}

func completeHandler(calls *atomic.Int64) runtime.Handler {
	return runtime.HandlerFunc(func(jc *runtime.Context) error {
		calls.Add(1)
		return jc.Complete("No compliance risks found.", map[string]int{}, nil)
	})
}

func TestWorkerPoolDrainsQueueAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)

	db := testutil.DB(t)
	jobs := []*types.ReviewJob{
		testutil.SeedJob(t, db, nil, "first"),
		testutil.SeedJob(t, db, nil, "second"),
		testutil.SeedJob(t, db, nil, "third"),
	}
	var calls atomic.Int64
	m := &fakeMetrics{}
	w := newWorker(t, db, completeHandler(&calls), m)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	require.Eventually(t, func() bool {
		for _, j := range jobs {
			if reload(t, db, j).Status != types.StatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	w.Wait()

	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 3, m.finished.Load())
	assert.Zero(t, m.busy.Load())
}

func TestRunOnceEmptyQueue(t *testing.T) {
	db := testutil.DB(t)
	var calls atomic.Int64
	w := newWorker(t, db, completeHandler(&calls), nil)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, calls.Load())
}

func TestPanicIsRecordedAsFatalFailure(t *testing.T) {
	db := testutil.DB(t)
	job := testutil.SeedJob(t, db, nil, "boom")
	m := &fakeMetrics{}
	w := newWorker(t, db, runtime.HandlerFunc(func(jc *runtime.Context) error {
		panic("unexpected nil map")
	}), m)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	got := reload(t, db, job)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, types.ErrorKindFatal, got.ErrorKind)
	assert.Equal(t, "internal error during review", got.ErrorReason)
	assert.Equal(t, "failed/fatal", m.lastKind.Load())
}

func TestHandlerErrorFailsUnfinishedJob(t *testing.T) {
	db := testutil.DB(t)
	job := testutil.SeedJob(t, db, nil, "text")
	w := newWorker(t, db, runtime.HandlerFunc(func(jc *runtime.Context) error {
		return errors.New("db write failed")
	}), nil)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, reload(t, db, job).Status)
}

func TestHandlerErrorAfterCompletionKeepsCompleted(t *testing.T) {
	db := testutil.DB(t)
	job := testutil.SeedJob(t, db, nil, "text")
	w := newWorker(t, db, runtime.HandlerFunc(func(jc *runtime.Context) error {
		if err := jc.Complete("done", nil, nil); err != nil {
			return err
		}
		return errors.New("late error")
	}), nil)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, reload(t, db, job).Status)
}

func TestJobOverAttemptCapIsFailedWithoutRunning(t *testing.T) {
	db := testutil.DB(t)
	job := testutil.SeedJob(t, db, nil, "text")
	require.NoError(t, db.Model(&types.ReviewJob{}).Where("id = ?", job.ID).Update("attempts", 3).Error)

	var calls atomic.Int64
	w := newWorker(t, db, completeHandler(&calls), nil)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	assert.Zero(t, calls.Load())

	got := reload(t, db, job)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, 4, got.Attempts)
	assert.Contains(t, got.ErrorReason, "after 3 attempts")
}

func TestShutdownLeavesJobProcessing(t *testing.T) {
	db := testutil.DB(t)
	job := testutil.SeedJob(t, db, nil, "text")
	ctx, cancel := context.WithCancel(context.Background())
	w := newWorker(t, db, runtime.HandlerFunc(func(jc *runtime.Context) error {
		cancel()
		<-jc.Ctx.Done()
		return jc.Ctx.Err()
	}), nil)

	_, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, reload(t, db, job).Status)
}
