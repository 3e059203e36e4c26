package review

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AdminStatusApproved = "approved"
	AdminStatusRejected = "rejected"
)

func ValidAdminStatus(s string) bool {
	return s == AdminStatusApproved || s == AdminStatusRejected
}

// RiskFeedback is one administrator verdict. Rows are append-only; the
// newest row for a risk is the authoritative one.
type RiskFeedback struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RiskID       uuid.UUID `gorm:"type:uuid;column:risk_id;not null;index" json:"risk_id"`
	JobID        uuid.UUID `gorm:"type:uuid;column:job_id;not null;index" json:"job_id"`
	AdminUserID  uuid.UUID `gorm:"type:uuid;column:admin_user_id;not null;index" json:"admin_user_id"`
	AdminStatus  string    `gorm:"column:admin_status;not null;index" json:"admin_status"`
	AdminComment *string   `gorm:"column:admin_comment;type:text" json:"admin_comment,omitempty"`
	ReviewedAt   time.Time `gorm:"column:reviewed_at;not null;index" json:"reviewed_at"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

func (RiskFeedback) TableName() string { return "risk_feedback" }

func (f *RiskFeedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.ReviewedAt.IsZero() {
		f.ReviewedAt = time.Now().UTC()
	}
	return nil
}
