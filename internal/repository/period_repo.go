package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// PeriodFilter narrows period listings.
type PeriodFilter struct {
	Status   models.PeriodStatus
	Page     int
	PageSize int
}

// PeriodRepository persists scoping periods.
type PeriodRepository interface {
	GetActive(ctx context.Context) (models.Period, error)
	GetByID(ctx context.Context, id uint) (models.Period, error)
	List(ctx context.Context, filter PeriodFilter) ([]models.Period, int64, error)
	Create(ctx context.Context, period *models.Period) error
	Activate(ctx context.Context, id uint, at time.Time) (models.Period, error)
	Complete(ctx context.Context, id uint, at time.Time) (models.Period, error)
}

type periodRepository struct {
	db *gorm.DB
}

// NewPeriodRepository constructs the period repository.
func NewPeriodRepository(db *gorm.DB) PeriodRepository {
	return &periodRepository{db: db}
}

func (r *periodRepository) GetActive(ctx context.Context) (models.Period, error) {
	var period models.Period
	if err := r.db.WithContext(ctx).
		Where("status = ?", models.PeriodStatusActive).
		Order("id DESC").
		First(&period).Error; err != nil {
		return models.Period{}, err
	}

	return period, nil
}

func (r *periodRepository) GetByID(ctx context.Context, id uint) (models.Period, error) {
	var period models.Period
	if err := r.db.WithContext(ctx).First(&period, id).Error; err != nil {
		return models.Period{}, err
	}

	return period, nil
}

func (r *periodRepository) List(ctx context.Context, filter PeriodFilter) ([]models.Period, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Period{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(filter.Page, filter.PageSize)
	var periods []models.Period
	if err := query.Order("start_date DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&periods).Error; err != nil {
		return nil, 0, err
	}

	return periods, total, nil
}

func (r *periodRepository) Create(ctx context.Context, period *models.Period) error {
	return r.db.WithContext(ctx).Create(period).Error
}

// Activate completes whichever period is currently ACTIVE and promotes the PLANNED period
// id in one transaction. The partial unique index on status rejects a concurrent activation.
func (r *periodRepository) Activate(ctx context.Context, id uint, at time.Time) (models.Period, error) {
	var activated models.Period
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&activated, id).Error; err != nil {
			return err
		}

		demote := tx.Model(&models.Period{}).
			Where("status = ?", models.PeriodStatusActive).
			Where("id <> ?", id).
			Updates(map[string]interface{}{
				"status":     models.PeriodStatusCompleted,
				"end_date":   gorm.Expr("COALESCE(end_date, ?)", at),
				"updated_at": at,
			})
		if demote.Error != nil {
			return demote.Error
		}

		promote := tx.Model(&models.Period{}).
			Where("id = ?", id).
			Where("status = ?", models.PeriodStatusPlanned).
			Updates(map[string]interface{}{
				"status":     models.PeriodStatusActive,
				"updated_at": at,
			})
		if promote.Error != nil {
			return promote.Error
		}
		if promote.RowsAffected == 0 {
			return ErrStateConflict
		}

		return tx.First(&activated, id).Error
	})
	if err != nil {
		return models.Period{}, err
	}

	return activated, nil
}

func (r *periodRepository) Complete(ctx context.Context, id uint, at time.Time) (models.Period, error) {
	var completed models.Period
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&completed, id).Error; err != nil {
			return err
		}

		update := tx.Model(&models.Period{}).
			Where("id = ?", id).
			Where("status = ?", models.PeriodStatusActive).
			Updates(map[string]interface{}{
				"status":     models.PeriodStatusCompleted,
				"end_date":   gorm.Expr("COALESCE(end_date, ?)", at),
				"updated_at": at,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return ErrStateConflict
		}

		return tx.First(&completed, id).Error
	})
	if err != nil {
		return models.Period{}, err
	}

	return completed, nil
}
