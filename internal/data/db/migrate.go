package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/riskreview-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.All()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if db.Dialector.Name() == DriverPostgres {
		// Claim scans only ever look at runnable rows.
		if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_review_job_runnable
			ON review_job (created_at)
			WHERE status IN ('pending', 'processing') AND deleted_at IS NULL`).Error; err != nil {
			return fmt.Errorf("create runnable index: %w", err)
		}
	}
	return nil
}
