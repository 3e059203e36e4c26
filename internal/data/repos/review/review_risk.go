package review

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

type ReviewRiskRepo interface {
	Create(dbc dbctx.Context, risks []*types.ReviewRisk) ([]*types.ReviewRisk, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ReviewRisk, error)
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.ReviewRisk, error)
	NextSeq(dbc dbctx.Context, jobID uuid.UUID) (int, error)
}

type reviewRiskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewRiskRepo(db *gorm.DB, baseLog *logger.Logger) ReviewRiskRepo {
	return &reviewRiskRepo{
		db:  db,
		log: baseLog.With("repo", "ReviewRiskRepo"),
	}
}

func (r *reviewRiskRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *reviewRiskRepo) Create(dbc dbctx.Context, risks []*types.ReviewRisk) ([]*types.ReviewRisk, error) {
	if len(risks) == 0 {
		return []*types.ReviewRisk{}, nil
	}
	if err := r.tx(dbc).Create(&risks).Error; err != nil {
		return nil, err
	}
	return risks, nil
}

func (r *reviewRiskRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ReviewRisk, error) {
	var risk types.ReviewRisk
	if err := r.tx(dbc).Where("id = ?", id).First(&risk).Error; err != nil {
		return nil, err
	}
	return &risk, nil
}

// ListByJob returns risks in creation order.
func (r *reviewRiskRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.ReviewRisk, error) {
	var out []*types.ReviewRisk
	if err := r.tx(dbc).Where("job_id = ?", jobID).Order("seq ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// NextSeq is one past the highest seq persisted for the job, or 0.
func (r *reviewRiskRepo) NextSeq(dbc dbctx.Context, jobID uuid.UUID) (int, error) {
	var maxSeq *int
	err := r.tx(dbc).Model(&types.ReviewRisk{}).
		Where("job_id = ?", jobID).
		Select("MAX(seq)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	if maxSeq == nil {
		return 0, nil
	}
	return *maxSeq + 1, nil
}
