package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// UserRepository provides read access to user identities.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (models.User, error)
	ListByRoles(ctx context.Context, roles []models.Role) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).
		Select("id", "name", "email", "role", "tutor_id", "created_at", "updated_at").
		First(&user, id).Error; err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (r *userRepository) ListByRoles(ctx context.Context, roles []models.Role) ([]models.User, error) {
	query := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("id", "name", "email", "role", "tutor_id")
	if len(roles) > 0 {
		query = query.Where("role IN ?", roles)
	}

	var users []models.User
	if err := query.Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}

	return users, nil
}
