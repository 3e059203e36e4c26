package domain

import (
	"github.com/yungbote/riskreview-backend/internal/domain/corpus"
	"github.com/yungbote/riskreview-backend/internal/domain/review"
)

type (
	ReviewJob    = review.ReviewJob
	ReviewRisk   = review.ReviewRisk
	RiskFeedback = review.RiskFeedback
	CorpusEntry  = corpus.CorpusEntry
	RadarAlert   = review.RadarAlert
)

// All lists every persisted model in migration order.
func All() []any {
	return []any{
		&corpus.CorpusEntry{},
		&review.ReviewJob{},
		&review.ReviewRisk{},
		&review.RiskFeedback{},
	}
}

const (
	StatusPending    = review.StatusPending
	StatusProcessing = review.StatusProcessing
	StatusCompleted  = review.StatusCompleted
	StatusFailed     = review.StatusFailed
	StatusIgnored    = review.StatusIgnored

	LevelHigh   = review.LevelHigh
	LevelMedium = review.LevelMedium
	LevelLow    = review.LevelLow

	AdminStatusApproved = review.AdminStatusApproved
	AdminStatusRejected = review.AdminStatusRejected

	ErrorKindFatal   = review.ErrorKindFatal
	ErrorKindTimeout = review.ErrorKindTimeout

	CategoryPolicy    = review.CategoryPolicy
	CategoryBidding   = review.CategoryBidding
	CategoryAgreement = review.CategoryAgreement

	CorpusKindCase       = corpus.KindCase
	CorpusKindRegulation = corpus.KindRegulation
	CorpusKindGuidance   = corpus.KindGuidance
)

var TerminalStatuses = review.TerminalStatuses

func IsTerminal(status string) bool { return review.IsTerminal(status) }

func LevelRank(level string) int { return review.LevelRank(level) }
