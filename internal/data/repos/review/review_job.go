package review

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

type ReviewJobRepo interface {
	Create(dbc dbctx.Context, job *types.ReviewJob) (*types.ReviewJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ReviewJob, error)
	List(dbc dbctx.Context, filter JobFilter) ([]*types.ReviewJob, error)
	ClaimNextRunnable(dbc dbctx.Context, staleAfter time.Duration) (*types.ReviewJob, error)
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowedStatuses []string, updates map[string]interface{}) (bool, error)
	AdvanceProgress(dbc dbctx.Context, id uuid.UUID, progress int, message string, updates map[string]interface{}) (bool, error)
	RecountRisks(dbc dbctx.Context, id uuid.UUID) (int, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) (bool, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
	SumRiskCount(dbc dbctx.Context) (int64, error)
	CountDistinctOwners(dbc dbctx.Context) (int64, error)
}

// JobFilter narrows List. A nil OwnerUserID lists every owner.
type JobFilter struct {
	OwnerUserID *uuid.UUID
	Status      string
	Limit       int
	Offset      int
}

type reviewJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewJobRepo(db *gorm.DB, baseLog *logger.Logger) ReviewJobRepo {
	return &reviewJobRepo{
		db:  db,
		log: baseLog.With("repo", "ReviewJobRepo"),
	}
}

func (r *reviewJobRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *reviewJobRepo) Create(dbc dbctx.Context, job *types.ReviewJob) (*types.ReviewJob, error) {
	if job == nil {
		return nil, errors.New("nil job")
	}
	if err := r.tx(dbc).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *reviewJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ReviewJob, error) {
	var job types.ReviewJob
	if err := r.tx(dbc).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *reviewJobRepo) List(dbc dbctx.Context, filter JobFilter) ([]*types.ReviewJob, error) {
	q := r.tx(dbc).Model(&types.ReviewJob{}).Omit("source_text")
	if filter.OwnerUserID != nil {
		q = q.Where("owner_user_id = ?", *filter.OwnerUserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.ReviewJob
	err := q.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimNextRunnable picks the oldest pending job, or a processing job whose
// heartbeat went stale, and stamps it as owned by the caller. Pending jobs
// enter processing with progress reset to 0; stale jobs keep their progress
// and resume from processed_chunks.
func (r *reviewJobRepo) ClaimNextRunnable(dbc dbctx.Context, staleAfter time.Duration) (*types.ReviewJob, error) {
	now := time.Now().UTC()
	staleCutoff := now.Add(-staleAfter)
	var claimed *types.ReviewJob
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		q := txx
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var job types.ReviewJob
		qErr := q.
			Where("status = ? OR (status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?)",
				types.StatusPending, types.StatusProcessing, staleCutoff).
			Order("created_at ASC").
			First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		updates := map[string]interface{}{
			"status":       types.StatusProcessing,
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		}
		guard := txx.Model(&types.ReviewJob{}).Where("id = ? AND status = ?", job.ID, job.Status)
		if job.Status == types.StatusPending {
			updates["progress"] = 0
			updates["progress_message"] = "starting review"
			updates["started_at"] = now
		} else {
			guard = guard.Where("heartbeat_at < ?", staleCutoff)
		}
		res := guard.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to another worker.
			return nil
		}
		if err := txx.Where("id = ?", job.ID).First(&job).Error; err != nil {
			return err
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *reviewJobRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := r.tx(dbc).Model(&types.ReviewJob{}).Where("id = ?", id)
	if len(allowedStatuses) == 1 {
		q = q.Where("status = ?", allowedStatuses[0])
	} else if len(allowedStatuses) > 1 {
		q = q.Where("status IN ?", allowedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AdvanceProgress writes progress only while the job is processing and only
// forward, so concurrent pollers never see it move backwards.
func (r *reviewJobRepo) AdvanceProgress(dbc dbctx.Context, id uuid.UUID, progress int, message string, updates map[string]interface{}) (bool, error) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	now := time.Now().UTC()
	fields := map[string]interface{}{
		"progress":         progress,
		"progress_message": message,
		"heartbeat_at":     now,
		"updated_at":       now,
	}
	for k, v := range updates {
		fields[k] = v
	}
	res := r.tx(dbc).Model(&types.ReviewJob{}).
		Where("id = ? AND status = ? AND progress <= ?", id, types.StatusProcessing, progress).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecountRisks rewrites risk_count from the live child rows and returns it.
func (r *reviewJobRepo) RecountRisks(dbc dbctx.Context, id uuid.UUID) (int, error) {
	db := r.tx(dbc)
	err := db.Exec(
		`UPDATE review_job SET risk_count = (SELECT COUNT(*) FROM review_risk WHERE review_risk.job_id = ?), updated_at = ? WHERE id = ?`,
		id, time.Now().UTC(), id,
	).Error
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Model(&types.ReviewJob{}).Where("id = ?", id).Select("risk_count").Scan(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *reviewJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	res := r.tx(dbc).Model(&types.ReviewJob{}).
		Where("id = ? AND status = ?", id, types.StatusProcessing).
		Updates(map[string]interface{}{"heartbeat_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *reviewJobRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.tx(dbc).Model(&types.ReviewJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *reviewJobRepo) SumRiskCount(dbc dbctx.Context) (int64, error) {
	var total int64
	err := r.tx(dbc).Model(&types.ReviewJob{}).
		Select("COALESCE(SUM(risk_count), 0)").
		Scan(&total).Error
	return total, err
}

func (r *reviewJobRepo) CountDistinctOwners(dbc dbctx.Context) (int64, error) {
	var n int64
	err := r.tx(dbc).Model(&types.ReviewJob{}).
		Where("owner_user_id IS NOT NULL").
		Distinct("owner_user_id").
		Count(&n).Error
	return n, err
}
