package review

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

// LevelRank orders severities; unknown levels rank with medium.
func LevelRank(level string) int {
	switch level {
	case LevelHigh:
		return 3
	case LevelLow:
		return 1
	default:
		return 2
	}
}

type ReviewRisk struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID uuid.UUID `gorm:"type:uuid;column:job_id;not null;uniqueIndex:idx_review_risk_job_seq,priority:1" json:"job_id"`
	Seq   int       `gorm:"column:seq;not null;uniqueIndex:idx_review_risk_job_seq,priority:2" json:"seq"`

	ChunkIndex int `gorm:"column:chunk_index;not null;index" json:"chunk_index"`
	CharOffset int `gorm:"column:char_offset;not null;default:0" json:"char_offset"`

	Level       string `gorm:"column:level;not null;index" json:"level"`
	Title       string `gorm:"column:title;not null" json:"title"`
	Description string `gorm:"column:description;type:text;not null" json:"description"`
	Location    string `gorm:"column:location;type:text" json:"location,omitempty"`
	Suggestion  string `gorm:"column:suggestion;type:text" json:"suggestion,omitempty"`
	ViolatedLaw string `gorm:"column:violated_law;type:text" json:"violated_law,omitempty"`
	Reference   string `gorm:"column:reference;type:text" json:"reference,omitempty"`

	// Set when the finding went through the defend/judge pass and survived.
	Defense      string `gorm:"column:defense;type:text" json:"defense,omitempty"`
	RulingReason string `gorm:"column:ruling_reason;type:text" json:"ruling_reason,omitempty"`
	Confidence   *int   `gorm:"column:confidence" json:"confidence,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ReviewRisk) TableName() string { return "review_risk" }

func (r *ReviewRisk) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
