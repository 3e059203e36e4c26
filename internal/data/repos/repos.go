package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/riskreview-backend/internal/data/repos/corpus"
	"github.com/yungbote/riskreview-backend/internal/data/repos/review"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

type ReviewJobRepo = review.ReviewJobRepo
type ReviewRiskRepo = review.ReviewRiskRepo
type RiskFeedbackRepo = review.RiskFeedbackRepo
type CorpusEntryRepo = corpus.CorpusEntryRepo

type JobFilter = review.JobFilter
type FeedbackFilter = review.FeedbackFilter
type CorpusSearchQuery = corpus.SearchQuery

type Set struct {
	ReviewJob    ReviewJobRepo
	ReviewRisk   ReviewRiskRepo
	RiskFeedback RiskFeedbackRepo
	CorpusEntry  CorpusEntryRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		ReviewJob:    review.NewReviewJobRepo(db, log),
		ReviewRisk:   review.NewReviewRiskRepo(db, log),
		RiskFeedback: review.NewRiskFeedbackRepo(db, log),
		CorpusEntry:  corpus.NewCorpusEntryRepo(db, log),
	}
}
