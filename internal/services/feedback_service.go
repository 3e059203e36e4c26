package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/riskreview-backend/internal/data/repos"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/domain/review"
	"github.com/yungbote/riskreview-backend/internal/platform/apierr"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

type FeedbackMetrics interface {
	ObserveFeedback(adminStatus string)
}

// FeedbackService is the append-only ledger of administrator verdicts on
// risks. It never touches the risk or its job.
type FeedbackService interface {
	Submit(ctx context.Context, riskID, adminID uuid.UUID, status string, comment *string) (*types.RiskFeedback, error)
	ListForRisk(ctx context.Context, riskID uuid.UUID) ([]*types.RiskFeedback, error)
	List(ctx context.Context, filter repos.FeedbackFilter) ([]*types.RiskFeedback, error)
}

type feedbackService struct {
	log      *logger.Logger
	risks    repos.ReviewRiskRepo
	feedback repos.RiskFeedbackRepo
	metrics  FeedbackMetrics
}

func NewFeedbackService(baseLog *logger.Logger, risks repos.ReviewRiskRepo, feedback repos.RiskFeedbackRepo, metrics FeedbackMetrics) FeedbackService {
	return &feedbackService{
		log:      baseLog.With("service", "FeedbackService"),
		risks:    risks,
		feedback: feedback,
		metrics:  metrics,
	}
}

func (s *feedbackService) risk(ctx context.Context, riskID uuid.UUID) (*types.ReviewRisk, error) {
	risk, err := s.risks.GetByID(dbctx.Context{Ctx: ctx}, riskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: risk %s", apierr.ErrNotFound, riskID)
	}
	if err != nil {
		return nil, fmt.Errorf("load risk: %w", err)
	}
	return risk, nil
}

func (s *feedbackService) Submit(ctx context.Context, riskID, adminID uuid.UUID, status string, comment *string) (*types.RiskFeedback, error) {
	risk, err := s.risk(ctx, riskID)
	if err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if !review.ValidAdminStatus(status) {
		return nil, fmt.Errorf("%w: adminStatus must be approved or rejected", apierr.ErrInvalidState)
	}
	if adminID == uuid.Nil {
		return nil, fmt.Errorf("%w: no administrator", apierr.ErrUnauthorized)
	}
	if comment != nil {
		trimmed := strings.TrimSpace(*comment)
		if trimmed == "" {
			comment = nil
		} else {
			comment = &trimmed
		}
	}

	fb, err := s.feedback.Create(dbctx.Context{Ctx: ctx}, &types.RiskFeedback{
		RiskID:       risk.ID,
		JobID:        risk.JobID,
		AdminUserID:  adminID,
		AdminStatus:  status,
		AdminComment: comment,
	})
	if err != nil {
		return nil, fmt.Errorf("record feedback: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveFeedback(status)
	}
	s.log.Info("feedback recorded", "risk_id", riskID.String(), "admin_user_id", adminID.String(), "admin_status", status)
	return fb, nil
}

// ListForRisk returns the verdict history, newest first.
func (s *feedbackService) ListForRisk(ctx context.Context, riskID uuid.UUID) ([]*types.RiskFeedback, error) {
	if _, err := s.risk(ctx, riskID); err != nil {
		return nil, err
	}
	return s.feedback.ListByRisk(dbctx.Context{Ctx: ctx}, riskID)
}

func (s *feedbackService) List(ctx context.Context, filter repos.FeedbackFilter) ([]*types.RiskFeedback, error) {
	filter.AdminStatus = strings.ToLower(strings.TrimSpace(filter.AdminStatus))
	if filter.AdminStatus != "" && !review.ValidAdminStatus(filter.AdminStatus) {
		return nil, fmt.Errorf("%w: unknown status %q", apierr.ErrValidation, filter.AdminStatus)
	}
	return s.feedback.List(dbctx.Context{Ctx: ctx}, filter)
}
