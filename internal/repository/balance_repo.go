package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// PointsSum is the non-rolled-back magnitude of one transaction type for one student.
type PointsSum struct {
	StudentID uint
	Type      models.PointsTransactionType
	Total     int64
}

// StudentSum is a per-student total.
type StudentSum struct {
	StudentID uint
	Total     int64
}

// BalanceRepository runs the grouped read queries behind the balance calculators.
// Every query excludes rolled-back rows and is scoped to a single period.
type BalanceRepository interface {
	SumPointsByType(ctx context.Context, periodID uint, studentIDs []uint) ([]PointsSum, error)
	SumAwardedPoints(ctx context.Context, periodID uint, studentIDs []uint) ([]StudentSum, error)
	SumExperience(ctx context.Context, periodID uint, studentIDs []uint) ([]StudentSum, error)
}

type balanceRepository struct {
	db *gorm.DB
}

// NewBalanceRepository constructs the aggregation repository.
func NewBalanceRepository(db *gorm.DB) BalanceRepository {
	return &balanceRepository{db: db}
}

func (r *balanceRepository) SumPointsByType(ctx context.Context, periodID uint, studentIDs []uint) ([]PointsSum, error) {
	var rows []PointsSum
	err := r.db.WithContext(ctx).
		Model(&models.PointsTransaction{}).
		Select("student_id, type, COALESCE(SUM(points), 0) AS total").
		Where("period_id = ?", periodID).
		Where("student_id IN ?", studentIDs).
		Where("rolled_back = ?", false).
		Group("student_id, type").
		Scan(&rows).Error
	return rows, err
}

func (r *balanceRepository) SumAwardedPoints(ctx context.Context, periodID uint, studentIDs []uint) ([]StudentSum, error) {
	var rows []StudentSum
	err := r.db.WithContext(ctx).
		Model(&models.PointsTransaction{}).
		Select("student_id, COALESCE(SUM(points), 0) AS total").
		Where("period_id = ?", periodID).
		Where("student_id IN ?", studentIDs).
		Where("type = ?", models.PointsTransactionAward).
		Where("rolled_back = ?", false).
		Group("student_id").
		Scan(&rows).Error
	return rows, err
}

func (r *balanceRepository) SumExperience(ctx context.Context, periodID uint, studentIDs []uint) ([]StudentSum, error) {
	var rows []StudentSum
	err := r.db.WithContext(ctx).
		Model(&models.ExperienceTransaction{}).
		Select("student_id, COALESCE(SUM(amount), 0) AS total").
		Where("period_id = ?", periodID).
		Where("student_id IN ?", studentIDs).
		Where("rolled_back = ?", false).
		Group("student_id").
		Scan(&rows).Error
	return rows, err
}
