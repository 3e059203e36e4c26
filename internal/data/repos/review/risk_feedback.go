package review

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

type RiskFeedbackRepo interface {
	Create(dbc dbctx.Context, fb *types.RiskFeedback) (*types.RiskFeedback, error)
	ListByRisk(dbc dbctx.Context, riskID uuid.UUID) ([]*types.RiskFeedback, error)
	List(dbc dbctx.Context, filter FeedbackFilter) ([]*types.RiskFeedback, error)
	CountByRisk(dbc dbctx.Context, riskID uuid.UUID) (int64, error)
}

type FeedbackFilter struct {
	AdminStatus string
	JobID       *uuid.UUID
	Limit       int
	Offset      int
}

type riskFeedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRiskFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) RiskFeedbackRepo {
	return &riskFeedbackRepo{
		db:  db,
		log: baseLog.With("repo", "RiskFeedbackRepo"),
	}
}

func (r *riskFeedbackRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *riskFeedbackRepo) Create(dbc dbctx.Context, fb *types.RiskFeedback) (*types.RiskFeedback, error) {
	if err := r.tx(dbc).Create(fb).Error; err != nil {
		return nil, err
	}
	return fb, nil
}

// ListByRisk returns the verdict history newest first.
func (r *riskFeedbackRepo) ListByRisk(dbc dbctx.Context, riskID uuid.UUID) ([]*types.RiskFeedback, error) {
	var out []*types.RiskFeedback
	err := r.tx(dbc).Where("risk_id = ?", riskID).
		Order("reviewed_at DESC").
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *riskFeedbackRepo) List(dbc dbctx.Context, filter FeedbackFilter) ([]*types.RiskFeedback, error) {
	q := r.tx(dbc).Model(&types.RiskFeedback{})
	if filter.AdminStatus != "" {
		q = q.Where("admin_status = ?", filter.AdminStatus)
	}
	if filter.JobID != nil {
		q = q.Where("job_id = ?", *filter.JobID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.RiskFeedback
	if err := q.Order("reviewed_at DESC").Limit(limit).Offset(filter.Offset).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *riskFeedbackRepo) CountByRisk(dbc dbctx.Context, riskID uuid.UUID) (int64, error) {
	var n int64
	err := r.tx(dbc).Model(&types.RiskFeedback{}).Where("risk_id = ?", riskID).Count(&n).Error
	return n, err
}
