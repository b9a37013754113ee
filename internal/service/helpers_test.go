package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/tutorhub-api/internal/database"
	"github.com/noah-isme/tutorhub-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func ptrUint(v uint) *uint {
	return &v
}

func ptrInt64(v int64) *int64 {
	return &v
}

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string, role models.Role) models.User {
	t.Helper()

	user := models.User{
		Name:  name,
		Email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@tutorhub.test",
		Role:  role,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedPeriod(t *testing.T, db *gorm.DB, name string, status models.PeriodStatus) models.Period {
	t.Helper()

	period := models.Period{
		Name:       name,
		StartDate:  time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC),
		Status:     status,
		TotalWeeks: 16,
	}
	require.NoError(t, db.Create(&period).Error)
	return period
}

func seedPoints(t *testing.T, db *gorm.DB, studentID, periodID uint, kind models.PointsTransactionType, points int64, rolledBack bool) models.PointsTransaction {
	t.Helper()

	entry := models.PointsTransaction{
		Points:    points,
		Type:      kind,
		Reason:    "seed",
		StudentID: studentID,
		TutorID:   999,
		PeriodID:  periodID,
	}
	require.NoError(t, db.Create(&entry).Error)
	if rolledBack {
		require.NoError(t, db.Model(&entry).Update("rolled_back", true).Error)
		entry.RolledBack = true
	}
	return entry
}

func seedExperience(t *testing.T, db *gorm.DB, studentID, periodID uint, amount int64, rolledBack bool) models.ExperienceTransaction {
	t.Helper()

	entry := models.ExperienceTransaction{
		Amount:    amount,
		Reason:    "seed",
		StudentID: studentID,
		TutorID:   999,
		PeriodID:  periodID,
	}
	require.NoError(t, db.Create(&entry).Error)
	if rolledBack {
		require.NoError(t, db.Model(&entry).Update("rolled_back", true).Error)
		entry.RolledBack = true
	}
	return entry
}
