package review

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusIgnored    = "ignored"
)

// TerminalStatuses are never left once entered.
var TerminalStatuses = []string{StatusCompleted, StatusFailed, StatusIgnored}

func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusIgnored:
		return true
	default:
		return false
	}
}

const (
	ErrorKindFatal   = "fatal"
	ErrorKindTimeout = "timeout"
)

// Document categories assigned before extraction.
const (
	CategoryPolicy    = "policy"
	CategoryBidding   = "bidding"
	CategoryAgreement = "agreement"
)

// RadarAlert is the document-level warning raised for bidding documents that
// carry high severity findings.
type RadarAlert struct {
	Level       string `json:"level"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ReviewJob struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID *uuid.UUID `gorm:"type:uuid;column:owner_user_id;index" json:"owner_user_id,omitempty"`

	FileName     string `gorm:"column:file_name;not null" json:"file_name"`
	ContentType  string `gorm:"column:content_type" json:"content_type,omitempty"`
	ContentBytes int64  `gorm:"column:content_bytes;not null;default:0" json:"content_bytes"`
	SourceText   string `gorm:"column:source_text;type:text" json:"-"`
	SourceURI    string `gorm:"column:source_uri" json:"source_uri,omitempty"`

	Status          string         `gorm:"column:status;not null;index" json:"status"`
	Progress        int            `gorm:"column:progress;not null;default:0" json:"progress"`
	ProgressMessage string         `gorm:"column:progress_message" json:"progress_message"`
	RiskCount       int            `gorm:"column:risk_count;not null;default:0" json:"risk_count"`
	Summary         string         `gorm:"column:summary;type:text" json:"summary,omitempty"`
	Category        string         `gorm:"column:category;index" json:"category,omitempty"`
	CategoryReason  string         `gorm:"column:category_reason;type:text" json:"category_reason,omitempty"`
	RadarAlert      datatypes.JSON `gorm:"column:radar_alert;type:jsonb" json:"radar_alert,omitempty"`
	SeverityCounts  datatypes.JSON `gorm:"column:severity_counts;type:jsonb" json:"severity_counts,omitempty"`

	TotalChunks     int `gorm:"column:total_chunks;not null;default:0" json:"total_chunks"`
	ProcessedChunks int `gorm:"column:processed_chunks;not null;default:0" json:"processed_chunks"`
	FailedChunks    int `gorm:"column:failed_chunks;not null;default:0" json:"failed_chunks"`

	ErrorKind   string `gorm:"column:error_kind" json:"error_kind,omitempty"`
	ErrorReason string `gorm:"column:error_reason;type:text" json:"error_reason,omitempty"`
	Attempts    int    `gorm:"column:attempts;not null;default:0" json:"attempts"`

	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt  *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	IgnoredBy   *uuid.UUID `gorm:"type:uuid;column:ignored_by" json:"ignored_by,omitempty"`

	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ReviewJob) TableName() string { return "review_job" }

func (j *ReviewJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	return nil
}

// OwnedBy reports whether userID owns the job. Orphaned jobs are owned by nobody.
func (j *ReviewJob) OwnedBy(userID uuid.UUID) bool {
	return j != nil && j.OwnerUserID != nil && userID != uuid.Nil && *j.OwnerUserID == userID
}

// Alert decodes the stored radar alert, if any.
func (j *ReviewJob) Alert() *RadarAlert {
	if j == nil || len(j.RadarAlert) == 0 {
		return nil
	}
	var a RadarAlert
	if err := json.Unmarshal(j.RadarAlert, &a); err != nil || a.Title == "" {
		return nil
	}
	return &a
}
