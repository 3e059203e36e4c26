package handlers

import (
	"encoding/json"
	"time"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/services"
)

type jobStatusView struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	Progress        int    `json:"progress"`
	ProgressMessage string `json:"progressMessage"`
	RiskCount       int    `json:"riskCount"`
	FileName        string `json:"fileName"`
}

func statusView(j *types.ReviewJob) jobStatusView {
	return jobStatusView{
		ID:              j.ID.String(),
		Status:          j.Status,
		Progress:        j.Progress,
		ProgressMessage: j.ProgressMessage,
		RiskCount:       j.RiskCount,
		FileName:        j.FileName,
	}
}

type jobView struct {
	jobStatusView
	OwnerUserID     *string           `json:"ownerUserId,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	SeverityCounts  map[string]int    `json:"severityCounts,omitempty"`
	TotalChunks     int               `json:"totalChunks"`
	ProcessedChunks int               `json:"processedChunks"`
	FailedChunks    int               `json:"failedChunks"`
	ErrorKind       string            `json:"errorKind,omitempty"`
	ErrorReason     string            `json:"errorReason,omitempty"`
	Category        string            `json:"category,omitempty"`
	RadarAlert      *types.RadarAlert `json:"radarAlert,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	FinishedAt      *time.Time        `json:"finishedAt,omitempty"`
}

func fullView(j *types.ReviewJob) jobView {
	v := jobView{
		jobStatusView:   statusView(j),
		Summary:         j.Summary,
		TotalChunks:     j.TotalChunks,
		ProcessedChunks: j.ProcessedChunks,
		FailedChunks:    j.FailedChunks,
		ErrorKind:       j.ErrorKind,
		ErrorReason:     j.ErrorReason,
		Category:        j.Category,
		RadarAlert:      j.Alert(),
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.StartedAt,
		FinishedAt:      j.FinishedAt,
	}
	if j.OwnerUserID != nil {
		s := j.OwnerUserID.String()
		v.OwnerUserID = &s
	}
	if len(j.SeverityCounts) > 0 {
		_ = json.Unmarshal(j.SeverityCounts, &v.SeverityCounts)
	}
	return v
}

type riskView struct {
	ID          string `json:"id"`
	Seq         int    `json:"seq"`
	ChunkIndex  int    `json:"chunkIndex"`
	CharOffset  int    `json:"charOffset"`
	Level       string `json:"level"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
	Suggestion  string `json:"suggestion,omitempty"`
	ViolatedLaw string `json:"violatedLaw,omitempty"`
	Reference   string `json:"reference,omitempty"`

	Defense      string `json:"defense,omitempty"`
	RulingReason string `json:"rulingReason,omitempty"`
	Confidence   *int   `json:"confidence,omitempty"`
}

func riskViews(risks []*types.ReviewRisk) []riskView {
	out := make([]riskView, 0, len(risks))
	for _, r := range risks {
		out = append(out, riskView{
			ID:          r.ID.String(),
			Seq:         r.Seq,
			ChunkIndex:  r.ChunkIndex,
			CharOffset:  r.CharOffset,
			Level:       r.Level,
			Title:       r.Title,
			Description: r.Description,
			Location:    r.Location,
			Suggestion:  r.Suggestion,
			ViolatedLaw: r.ViolatedLaw,
			Reference:   r.Reference,

			Defense:      r.Defense,
			RulingReason: r.RulingReason,
			Confidence:   r.Confidence,
		})
	}
	return out
}

type feedbackView struct {
	ID           string    `json:"id"`
	RiskID       string    `json:"riskId"`
	JobID        string    `json:"jobId"`
	AdminUserID  string    `json:"adminUserId"`
	AdminStatus  string    `json:"adminStatus"`
	AdminComment *string   `json:"adminComment"`
	ReviewedAt   time.Time `json:"reviewedAt"`
}

func feedbackViews(rows []*types.RiskFeedback) []feedbackView {
	out := make([]feedbackView, 0, len(rows))
	for _, f := range rows {
		out = append(out, feedbackView{
			ID:           f.ID.String(),
			RiskID:       f.RiskID.String(),
			JobID:        f.JobID.String(),
			AdminUserID:  f.AdminUserID.String(),
			AdminStatus:  f.AdminStatus,
			AdminComment: f.AdminComment,
			ReviewedAt:   f.ReviewedAt,
		})
	}
	return out
}

type corpusHitView struct {
	ID         int64    `json:"id"`
	Kind       string   `json:"kind"`
	Title      string   `json:"title"`
	Category   string   `json:"category,omitempty"`
	Content    string   `json:"content"`
	SourceURL  string   `json:"sourceUrl,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
	Keyword    bool     `json:"keywordMatch"`
}

func corpusHitViews(hits []services.CorpusHit) []corpusHitView {
	out := make([]corpusHitView, 0, len(hits))
	for _, h := range hits {
		out = append(out, corpusHitView{
			ID:         h.Entry.ID,
			Kind:       h.Entry.Kind,
			Title:      h.Entry.Title,
			Category:   h.Entry.Category,
			Content:    h.Entry.Content,
			SourceURL:  h.Entry.SourceURL,
			Similarity: h.Similarity,
			Keyword:    h.Keyword,
		})
	}
	return out
}
