package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/riskreview-backend/internal/clients/redis"
	"github.com/yungbote/riskreview-backend/internal/data/repos"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/apierr"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/platform/gcs"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

const DefaultMaxDocumentBytes = 10 << 20

// SubmitInput is one review request. Exactly one of Text or SourceURI is set.
type SubmitInput struct {
	FileName    string
	ContentType string
	Text        string
	SourceURI   string
	// Size is the byte size reported by the upload; zero means len(Text).
	Size int64
}

type ReviewDetail struct {
	Job   *types.ReviewJob
	Risks []*types.ReviewRisk
}

type ReviewListQuery struct {
	All    bool
	Status string
	Limit  int
	Offset int
}

type ReviewConfig struct {
	MaxDocumentBytes   int64
	SubmissionsPerHour int
	// SourceURIEnabled accepts gs:// submissions; it requires a document
	// source on the worker side.
	SourceURIEnabled bool
}

type SubmissionMetrics interface {
	ObserveSubmission(outcome string)
}

type ReviewService interface {
	Submit(ctx context.Context, in SubmitInput) (*types.ReviewJob, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*types.ReviewJob, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*ReviewDetail, error)
	List(ctx context.Context, q ReviewListQuery) ([]*types.ReviewJob, error)
	Ignore(ctx context.Context, id uuid.UUID) (*types.ReviewJob, error)
}

type reviewService struct {
	db      *gorm.DB
	log     *logger.Logger
	jobs    repos.ReviewJobRepo
	risks   repos.ReviewRiskRepo
	limiter redis.RateLimiter
	notify  JobNotifier
	metrics SubmissionMetrics
	cfg     ReviewConfig
}

func NewReviewService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs repos.ReviewJobRepo,
	risks repos.ReviewRiskRepo,
	limiter redis.RateLimiter,
	notify JobNotifier,
	metrics SubmissionMetrics,
	cfg ReviewConfig,
) ReviewService {
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	return &reviewService{
		db:      db,
		log:     baseLog.With("service", "ReviewService"),
		jobs:    jobs,
		risks:   risks,
		limiter: limiter,
		notify:  notify,
		metrics: metrics,
		cfg:     cfg,
	}
}

func (s *reviewService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveSubmission(outcome)
	}
}

func (s *reviewService) Submit(ctx context.Context, in SubmitInput) (*types.ReviewJob, error) {
	rd, err := requester(ctx)
	if err != nil {
		return nil, err
	}
	job, err := s.validate(in)
	if err != nil {
		s.observe("rejected")
		return nil, err
	}

	if s.limiter != nil {
		allowed, retryAfter, lErr := s.limiter.Allow(ctx, rd.UserID.String())
		switch {
		case lErr != nil:
			s.log.Warn("rate limiter unavailable, admitting submission", "user_id", rd.UserID.String(), "error", lErr)
		case !allowed:
			s.observe("rate_limited")
			return nil, fmt.Errorf("%w: at most %d reviews per hour, retry in %s",
				apierr.ErrRateLimited, s.cfg.SubmissionsPerHour, retryAfter.Round(time.Second))
		}
	}

	owner := rd.UserID
	job.OwnerUserID = &owner
	job.Status = types.StatusPending
	job.ProgressMessage = "queued"
	created, err := s.jobs.Create(dbctx.Context{Ctx: ctx}, job)
	if err != nil {
		return nil, fmt.Errorf("create review job: %w", err)
	}
	s.observe("accepted")
	s.log.Info("review submitted", "job_id", created.ID.String(), "owner_user_id", owner.String(), "bytes", created.ContentBytes)
	if s.notify != nil {
		s.notify.JobCreated(created)
	}
	return created, nil
}

func (s *reviewService) validate(in SubmitInput) (*types.ReviewJob, error) {
	name := strings.TrimSpace(in.FileName)
	if name == "" {
		return nil, fmt.Errorf("%w: fileName is required", apierr.ErrValidation)
	}
	if utf8.RuneCountInString(name) > 255 {
		return nil, fmt.Errorf("%w: fileName is too long", apierr.ErrValidation)
	}
	hasText := in.Text != ""
	hasURI := strings.TrimSpace(in.SourceURI) != ""
	if hasText && hasURI {
		return nil, fmt.Errorf("%w: provide either text or sourceUri, not both", apierr.ErrValidation)
	}

	job := &types.ReviewJob{FileName: name, ContentType: in.ContentType}
	if hasURI {
		if !s.cfg.SourceURIEnabled {
			return nil, fmt.Errorf("%w: sourceUri submissions are disabled", apierr.ErrValidation)
		}
		uri := strings.TrimSpace(in.SourceURI)
		if _, _, err := gcs.ParseURI(uri); err != nil {
			return nil, fmt.Errorf("%w: %w", apierr.ErrValidation, err)
		}
		if in.Size > s.cfg.MaxDocumentBytes {
			return nil, tooLarge(s.cfg.MaxDocumentBytes)
		}
		job.SourceURI = uri
		job.ContentBytes = in.Size
		return job, nil
	}

	size := in.Size
	if n := int64(len(in.Text)); n > size {
		size = n
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: document is empty", apierr.ErrValidation)
	}
	if size > s.cfg.MaxDocumentBytes {
		return nil, tooLarge(s.cfg.MaxDocumentBytes)
	}
	if !utf8.ValidString(in.Text) {
		return nil, fmt.Errorf("%w: document text is not valid UTF-8", apierr.ErrValidation)
	}
	job.SourceText = in.Text
	job.ContentBytes = size
	return job, nil
}

func tooLarge(max int64) error {
	if max >= 1<<20 {
		return fmt.Errorf("%w: document exceeds the %d MB limit", apierr.ErrValidation, max>>20)
	}
	return fmt.Errorf("%w: document exceeds the %d byte limit", apierr.ErrValidation, max)
}

func (s *reviewService) load(ctx context.Context, id uuid.UUID) (*types.ReviewJob, error) {
	rd, err := requester(ctx)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.GetByID(dbctx.Context{Ctx: ctx}, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: review %s", apierr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load review job: %w", err)
	}
	// Orphaned jobs have no owner and fall through to admins only.
	if !rd.IsAdmin() && !job.OwnedBy(rd.UserID) {
		return nil, fmt.Errorf("%w: review %s", apierr.ErrAccessDenied, id)
	}
	return job, nil
}

// GetStatus is read-only; polling it any number of times changes nothing.
func (s *reviewService) GetStatus(ctx context.Context, id uuid.UUID) (*types.ReviewJob, error) {
	return s.load(ctx, id)
}

func (s *reviewService) GetDetail(ctx context.Context, id uuid.UUID) (*ReviewDetail, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	risks, err := s.risks.ListByJob(dbctx.Context{Ctx: ctx}, job.ID)
	if err != nil {
		return nil, fmt.Errorf("list risks: %w", err)
	}
	return &ReviewDetail{Job: job, Risks: risks}, nil
}

func (s *reviewService) List(ctx context.Context, q ReviewListQuery) ([]*types.ReviewJob, error) {
	rd, err := requester(ctx)
	if err != nil {
		return nil, err
	}
	filter := repos.JobFilter{Status: q.Status, Limit: q.Limit, Offset: q.Offset}
	if !q.All || !rd.IsAdmin() {
		owner := rd.UserID
		filter.OwnerUserID = &owner
	}
	return s.jobs.List(dbctx.Context{Ctx: ctx}, filter)
}

// Ignore is the administrative exit from pending or processing. A worker
// still running the job sees its next guarded write rejected and stops.
func (s *reviewService) Ignore(ctx context.Context, id uuid.UUID) (*types.ReviewJob, error) {
	rd, err := requester(ctx)
	if err != nil {
		return nil, err
	}
	if !rd.IsAdmin() {
		return nil, fmt.Errorf("%w: administrators only", apierr.ErrAccessDenied)
	}
	var out *types.ReviewJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		job, gErr := s.jobs.GetByID(dbc, id)
		if errors.Is(gErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: review %s", apierr.ErrNotFound, id)
		}
		if gErr != nil {
			return gErr
		}
		now := time.Now().UTC()
		admin := rd.UserID
		ok, uErr := s.jobs.UpdateFieldsIfStatus(dbc, id, []string{types.StatusPending, types.StatusProcessing}, map[string]interface{}{
			"status":           types.StatusIgnored,
			"progress_message": "ignored by administrator",
			"ignored_by":       admin,
			"finished_at":      now,
			"locked_at":        nil,
		})
		if uErr != nil {
			return uErr
		}
		if !ok {
			return apierr.New(http.StatusConflict, "invalid_transition",
				fmt.Errorf("%w: review is %s", apierr.ErrInvalidState, job.Status))
		}
		if _, rErr := s.jobs.RecountRisks(dbc, id); rErr != nil {
			return rErr
		}
		out, gErr = s.jobs.GetByID(dbc, id)
		return gErr
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("review ignored", "job_id", id.String(), "admin_user_id", rd.UserID.String())
	return out, nil
}
