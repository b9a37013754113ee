package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// singleActivePeriodIndex keeps at most one ACTIVE period. Partial indexes are supported
// by both PostgreSQL and SQLite.
const singleActivePeriodIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_periods_single_active ON periods (status) WHERE status = 'ACTIVE'`

// Migrate creates or updates the ledger schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Period{},
		&models.PointsTransaction{},
		&models.ExperienceTransaction{},
		&models.TransactionRollback{},
		&models.ActivityLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := db.Exec(singleActivePeriodIndex).Error; err != nil {
		return fmt.Errorf("create single active period index: %w", err)
	}

	return nil
}
