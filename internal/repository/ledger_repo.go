package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// ErrAlreadyRolledBack is returned when a rollback targets an entry that is already inactive.
var ErrAlreadyRolledBack = errors.New("repository: transaction already rolled back")

// TransactionFilter narrows ledger history queries.
type TransactionFilter struct {
	StudentID         uint
	PeriodID          *uint
	IncludeRolledBack bool
	Page              int
	PageSize          int
}

// LedgerRepository appends ledger entries and flips their rollback flag. It exposes no delete.
type LedgerRepository interface {
	CreateAward(ctx context.Context, award *models.PointsTransaction, experience *models.ExperienceTransaction) error
	CreatePoints(ctx context.Context, entry *models.PointsTransaction) error
	CreateExperience(ctx context.Context, entry *models.ExperienceTransaction) error
	GetPoints(ctx context.Context, id uint) (models.PointsTransaction, error)
	GetExperience(ctx context.Context, id uint) (models.ExperienceTransaction, error)
	Rollback(ctx context.Context, record *models.TransactionRollback) error
	ListPoints(ctx context.Context, filter TransactionFilter) ([]models.PointsTransaction, int64, error)
	ListExperience(ctx context.Context, filter TransactionFilter) ([]models.ExperienceTransaction, int64, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository constructs the ledger repository.
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) CreateAward(ctx context.Context, award *models.PointsTransaction, experience *models.ExperienceTransaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(award).Error; err != nil {
			return err
		}
		if experience == nil {
			return nil
		}
		return tx.Create(experience).Error
	})
}

func (r *ledgerRepository) CreatePoints(ctx context.Context, entry *models.PointsTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *ledgerRepository) CreateExperience(ctx context.Context, entry *models.ExperienceTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *ledgerRepository) GetPoints(ctx context.Context, id uint) (models.PointsTransaction, error) {
	var entry models.PointsTransaction
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return models.PointsTransaction{}, err
	}
	return entry, nil
}

func (r *ledgerRepository) GetExperience(ctx context.Context, id uint) (models.ExperienceTransaction, error) {
	var entry models.ExperienceTransaction
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return models.ExperienceTransaction{}, err
	}
	return entry, nil
}

// Rollback flips rolled_back on the targeted entry and stores the audit record in the same
// transaction. The update only matches active rows, so concurrent rollbacks of one entry
// produce exactly one record.
func (r *ledgerRepository) Rollback(ctx context.Context, record *models.TransactionRollback) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target interface{}
		switch record.TransactionKind {
		case models.TransactionKindPoints:
			target = &models.PointsTransaction{}
		case models.TransactionKindExperience:
			target = &models.ExperienceTransaction{}
		default:
			return gorm.ErrRecordNotFound
		}

		update := tx.Model(target).
			Where("id = ?", record.TransactionID).
			Where("rolled_back = ?", false).
			Update("rolled_back", true)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			var count int64
			if err := tx.Model(target).Where("id = ?", record.TransactionID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return gorm.ErrRecordNotFound
			}
			return ErrAlreadyRolledBack
		}

		return tx.Create(record).Error
	})
}

func (r *ledgerRepository) historyQuery(ctx context.Context, model interface{}, filter TransactionFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(model).Where("student_id = ?", filter.StudentID)
	if filter.PeriodID != nil {
		query = query.Where("period_id = ?", *filter.PeriodID)
	}
	if !filter.IncludeRolledBack {
		query = query.Where("rolled_back = ?", false)
	}
	return query
}

func (r *ledgerRepository) ListPoints(ctx context.Context, filter TransactionFilter) ([]models.PointsTransaction, int64, error) {
	query := r.historyQuery(ctx, &models.PointsTransaction{}, filter)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(filter.Page, filter.PageSize)
	var entries []models.PointsTransaction
	if err := query.Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

func (r *ledgerRepository) ListExperience(ctx context.Context, filter TransactionFilter) ([]models.ExperienceTransaction, int64, error) {
	query := r.historyQuery(ctx, &models.ExperienceTransaction{}, filter)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(filter.Page, filter.PageSize)
	var entries []models.ExperienceTransaction
	if err := query.Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
