package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
)

var (
	// ErrNoActivePeriod indicates a write was attempted while no period is ACTIVE.
	ErrNoActivePeriod = errors.New("no active period")
	// ErrPeriodNotFound indicates the requested period does not exist.
	ErrPeriodNotFound = errors.New("period not found")
	// ErrInvalidPeriodTransition indicates a lifecycle change the period cannot make.
	ErrInvalidPeriodTransition = errors.New("invalid period transition")
	// ErrInvalidPeriodDates indicates the end date precedes the start date.
	ErrInvalidPeriodDates = errors.New("period end date must not precede start date")
)

// PeriodResolver looks up the periods ledger operations are scoped to. The ACTIVE period
// is read from storage on every call and never memoised.
type PeriodResolver interface {
	GetActivePeriod(ctx context.Context) (*models.Period, error)
	RequireActivePeriod(ctx context.Context) (models.Period, error)
	GetPeriodByID(ctx context.Context, id uint) (*models.Period, error)
}

// PeriodService is the period registry.
type PeriodService interface {
	PeriodResolver
	List(ctx context.Context, req dto.PeriodListRequest) (dto.PeriodListResponse, error)
	Create(ctx context.Context, actor Actor, req dto.PeriodCreateRequest) (dto.PeriodResponse, error)
	Activate(ctx context.Context, actor Actor, id uint) (dto.PeriodResponse, error)
	Complete(ctx context.Context, actor Actor, id uint) (dto.PeriodResponse, error)
}

type periodService struct {
	repo      repository.PeriodRepository
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewPeriodService constructs the period registry.
func NewPeriodService(repo repository.PeriodRepository, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) PeriodService {
	return &periodService{
		repo:      repo,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "period_service").Logger(),
		now:       time.Now,
	}
}

func (s *periodService) GetActivePeriod(ctx context.Context) (*models.Period, error) {
	period, err := s.repo.GetActive(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

func (s *periodService) RequireActivePeriod(ctx context.Context) (models.Period, error) {
	period, err := s.GetActivePeriod(ctx)
	if err != nil {
		return models.Period{}, err
	}
	if period == nil {
		return models.Period{}, ErrNoActivePeriod
	}
	return *period, nil
}

func (s *periodService) GetPeriodByID(ctx context.Context, id uint) (*models.Period, error) {
	period, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

func (s *periodService) List(ctx context.Context, req dto.PeriodListRequest) (dto.PeriodListResponse, error) {
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	if err := s.validator.Struct(req); err != nil {
		return dto.PeriodListResponse{}, err
	}

	periods, total, err := s.repo.List(ctx, repository.PeriodFilter{
		Status:   models.PeriodStatus(req.Status),
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return dto.PeriodListResponse{}, err
	}

	items := make([]dto.PeriodResponse, 0, len(periods))
	for _, period := range periods {
		items = append(items, dto.NewPeriodResponse(period))
	}

	return dto.PeriodListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *periodService) Create(ctx context.Context, actor Actor, req dto.PeriodCreateRequest) (dto.PeriodResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return dto.PeriodResponse{}, err
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return dto.PeriodResponse{}, ErrInvalidPeriodDates
	}

	period := models.Period{
		Name:       req.Name,
		StartDate:  req.StartDate.UTC(),
		EndDate:    req.EndDate,
		Status:     models.PeriodStatusPlanned,
		TotalWeeks: req.TotalWeeks,
	}
	if err := s.repo.Create(ctx, &period); err != nil {
		s.logger.Error().Err(err).Msg("failed to create period")
		return dto.PeriodResponse{}, err
	}

	s.record(ctx, actor, models.ActionPeriodCreated, period)
	return dto.NewPeriodResponse(period), nil
}

func (s *periodService) Activate(ctx context.Context, actor Actor, id uint) (dto.PeriodResponse, error) {
	if err := s.checkTransition(ctx, id, models.PeriodStatusActive); err != nil {
		return dto.PeriodResponse{}, err
	}

	period, err := s.repo.Activate(ctx, id, s.now().UTC())
	if err != nil {
		return dto.PeriodResponse{}, s.translate(err)
	}

	s.logger.Info().Uint("period_id", period.ID).Msg("period activated")
	s.record(ctx, actor, models.ActionPeriodActivated, period)
	return dto.NewPeriodResponse(period), nil
}

func (s *periodService) Complete(ctx context.Context, actor Actor, id uint) (dto.PeriodResponse, error) {
	if err := s.checkTransition(ctx, id, models.PeriodStatusCompleted); err != nil {
		return dto.PeriodResponse{}, err
	}

	period, err := s.repo.Complete(ctx, id, s.now().UTC())
	if err != nil {
		return dto.PeriodResponse{}, s.translate(err)
	}

	s.logger.Info().Uint("period_id", period.ID).Msg("period completed")
	s.record(ctx, actor, models.ActionPeriodCompleted, period)
	return dto.NewPeriodResponse(period), nil
}

// checkTransition rejects lifecycle moves early; the conditional update in the repository
// still guards against concurrent transitions.
func (s *periodService) checkTransition(ctx context.Context, id uint, next models.PeriodStatus) error {
	period, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.translate(err)
	}
	if !period.CanTransitionTo(next) {
		return ErrInvalidPeriodTransition
	}
	return nil
}

func (s *periodService) translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrPeriodNotFound
	case errors.Is(err, repository.ErrStateConflict):
		return ErrInvalidPeriodTransition
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// another activation won the partial unique index
		return ErrInvalidPeriodTransition
	default:
		s.logger.Error().Err(err).Msg("period transition failed")
		return err
	}
}

func (s *periodService) record(ctx context.Context, actor Actor, action string, period models.Period) {
	id := period.ID
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		Action:     action,
		EntityType: "period",
		EntityID:   &id,
		Metadata: map[string]interface{}{
			"name":   period.Name,
			"status": string(period.Status),
		},
	})
}
