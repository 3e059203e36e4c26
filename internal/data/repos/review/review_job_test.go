package review

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/riskreview-backend/internal/data/repos/testutil"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
)

func TestReviewJobRepoClaimTransitionsPendingToProcessing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReviewJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	owner := uuid.New()
	job := testutil.SeedJob(t, tx, &owner, "some text")

	claimed, err := repo.ClaimNextRunnable(dbc, 10*time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected to claim %s, got %+v", job.ID, claimed)
	}
	if claimed.Status != types.StatusProcessing || claimed.Progress != 0 || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed state: status=%s progress=%d attempts=%d", claimed.Status, claimed.Progress, claimed.Attempts)
	}
	if claimed.StartedAt == nil || claimed.HeartbeatAt == nil {
		t.Fatalf("claim should stamp started_at and heartbeat_at")
	}

	again, err := repo.ClaimNextRunnable(dbc, 10*time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again != nil {
		t.Fatalf("fresh processing job must not be reclaimed, got %s", again.ID)
	}
}

func TestReviewJobRepoReclaimsStaleProcessingWithoutResettingProgress(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReviewJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	job := testutil.SeedJob(t, tx, nil, "text")
	stale := time.Now().UTC().Add(-time.Hour)
	if err := tx.Model(&types.ReviewJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":           types.StatusProcessing,
		"progress":         40,
		"processed_chunks": 2,
		"heartbeat_at":     stale,
	}).Error; err != nil {
		t.Fatalf("prepare stale job: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, time.Minute)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected stale job to be reclaimed")
	}
	if claimed.Progress != 40 || claimed.ProcessedChunks != 2 {
		t.Fatalf("resume lost progress: progress=%d processed=%d", claimed.Progress, claimed.ProcessedChunks)
	}
}

func TestReviewJobRepoAdvanceProgressIsMonotoneAndGuarded(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReviewJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	job := testutil.SeedJob(t, tx, nil, "text")
	if _, err := repo.ClaimNextRunnable(dbc, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	ok, err := repo.AdvanceProgress(dbc, job.ID, 50, "analyzing section 1 of 2", nil)
	if err != nil || !ok {
		t.Fatalf("advance to 50: ok=%v err=%v", ok, err)
	}
	ok, err = repo.AdvanceProgress(dbc, job.ID, 30, "stale write", nil)
	if err != nil {
		t.Fatalf("advance to 30: %v", err)
	}
	if ok {
		t.Fatalf("progress must not regress")
	}

	done, err := repo.UpdateFieldsIfStatus(dbc, job.ID, []string{types.StatusProcessing}, map[string]interface{}{
		"status":   types.StatusCompleted,
		"progress": 100,
	})
	if err != nil || !done {
		t.Fatalf("complete: ok=%v err=%v", done, err)
	}
	ok, err = repo.AdvanceProgress(dbc, job.ID, 100, "late", nil)
	if err != nil {
		t.Fatalf("late advance: %v", err)
	}
	if ok {
		t.Fatalf("terminal job must not accept progress writes")
	}
	ok, err = repo.UpdateFieldsIfStatus(dbc, job.ID, []string{types.StatusProcessing}, map[string]interface{}{"status": types.StatusFailed})
	if err != nil || ok {
		t.Fatalf("terminal job must not transition again: ok=%v err=%v", ok, err)
	}

	got, err := repo.GetByID(dbc, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.StatusCompleted || got.Progress != 100 {
		t.Fatalf("unexpected final state %s/%d", got.Status, got.Progress)
	}
}

func TestReviewJobRepoRecountAndStats(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReviewJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	ownerA, ownerB := uuid.New(), uuid.New()
	j1 := testutil.SeedJob(t, tx, &ownerA, "a")
	testutil.SeedJob(t, tx, &ownerA, "b")
	testutil.SeedJob(t, tx, &ownerB, "c")
	testutil.SeedJob(t, tx, nil, "orphan")

	testutil.SeedRisk(t, tx, j1.ID, 0, types.LevelHigh)
	testutil.SeedRisk(t, tx, j1.ID, 1, types.LevelLow)

	n, err := repo.RecountRisks(dbc, j1.ID)
	if err != nil {
		t.Fatalf("RecountRisks: %v", err)
	}
	if n != 2 {
		t.Fatalf("risk_count = %d, want 2", n)
	}

	byStatus, err := repo.CountByStatus(dbc)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if byStatus[types.StatusPending] < 4 {
		t.Fatalf("expected at least 4 pending, got %d", byStatus[types.StatusPending])
	}
	total, err := repo.SumRiskCount(dbc)
	if err != nil || total < 2 {
		t.Fatalf("SumRiskCount = %d err=%v", total, err)
	}
	owners, err := repo.CountDistinctOwners(dbc)
	if err != nil || owners < 2 {
		t.Fatalf("CountDistinctOwners = %d err=%v", owners, err)
	}
}
