package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	"github.com/noah-isme/tutorhub-api/internal/utils"
)

type stubActivityRecorder struct {
	entries []ActivityEntry
}

func (s *stubActivityRecorder) Record(_ context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	s.entries = append(s.entries, entry)
	return dto.ActivityResponse{Action: entry.Action, EntityType: entry.EntityType, EntityID: entry.EntityID}, nil
}

func setupPeriodService(t *testing.T) (*gorm.DB, PeriodService, *stubActivityRecorder) {
	t.Helper()

	db := setupLedgerDB(t)
	activity := &stubActivityRecorder{}
	validate := utils.NewValidator()

	svc := NewPeriodService(repository.NewPeriodRepository(db), validate, activity, testLogger())
	if concrete, ok := svc.(*periodService); ok {
		concrete.now = func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }
	}
	return db, svc, activity
}

func countActive(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Period{}).Where("status = ?", models.PeriodStatusActive).Count(&count).Error)
	return count
}

func TestPeriodServiceGetActivePeriodAbsent(t *testing.T) {
	db, svc, _ := setupPeriodService(t)
	seedPeriod(t, db, "Planned", models.PeriodStatusPlanned)

	period, err := svc.GetActivePeriod(context.Background())
	require.NoError(t, err)
	require.Nil(t, period)

	_, err = svc.RequireActivePeriod(context.Background())
	require.ErrorIs(t, err, ErrNoActivePeriod)
}

func TestPeriodServiceGetPeriodByID(t *testing.T) {
	db, svc, _ := setupPeriodService(t)
	seeded := seedPeriod(t, db, "Spring", models.PeriodStatusCompleted)

	period, err := svc.GetPeriodByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.NotNil(t, period)
	require.Equal(t, "Spring", period.Name)

	missing, err := svc.GetPeriodByID(context.Background(), seeded.ID+100)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestPeriodServiceActivationKeepsSingleActive(t *testing.T) {
	db, svc, activity := setupPeriodService(t)
	ctx := context.Background()
	admin := Actor{ID: 1, Role: models.RoleAdmin}

	first, err := svc.Create(ctx, admin, dto.PeriodCreateRequest{Name: "Fall 2024", StartDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), TotalWeeks: 16})
	require.NoError(t, err)
	require.Equal(t, string(models.PeriodStatusPlanned), first.Status)

	second, err := svc.Create(ctx, admin, dto.PeriodCreateRequest{Name: "Spring 2025", StartDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), TotalWeeks: 16})
	require.NoError(t, err)

	activated, err := svc.Activate(ctx, admin, first.ID)
	require.NoError(t, err)
	require.Equal(t, string(models.PeriodStatusActive), activated.Status)
	require.EqualValues(t, 1, countActive(t, db))

	activated, err = svc.Activate(ctx, admin, second.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, activated.ID)
	require.EqualValues(t, 1, countActive(t, db))

	previous, err := svc.GetPeriodByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, models.PeriodStatusCompleted, previous.Status)
	require.NotNil(t, previous.EndDate)

	current, err := svc.RequireActivePeriod(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, current.ID)

	actions := make([]string, 0, len(activity.entries))
	for _, entry := range activity.entries {
		actions = append(actions, entry.Action)
	}
	require.Equal(t, []string{
		models.ActionPeriodCreated,
		models.ActionPeriodCreated,
		models.ActionPeriodActivated,
		models.ActionPeriodActivated,
	}, actions)
}

func TestPeriodServiceRejectsInvalidTransitions(t *testing.T) {
	db, svc, _ := setupPeriodService(t)
	ctx := context.Background()
	admin := Actor{ID: 1, Role: models.RoleAdmin}

	completed := seedPeriod(t, db, "Old", models.PeriodStatusCompleted)
	planned := seedPeriod(t, db, "Next", models.PeriodStatusPlanned)

	_, err := svc.Activate(ctx, admin, completed.ID)
	require.ErrorIs(t, err, ErrInvalidPeriodTransition)

	_, err = svc.Complete(ctx, admin, planned.ID)
	require.ErrorIs(t, err, ErrInvalidPeriodTransition)

	_, err = svc.Activate(ctx, admin, 4242)
	require.ErrorIs(t, err, ErrPeriodNotFound)

	_, err = svc.Activate(ctx, admin, planned.ID)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, admin, planned.ID)
	require.ErrorIs(t, err, ErrInvalidPeriodTransition)

	done, err := svc.Complete(ctx, admin, planned.ID)
	require.NoError(t, err)
	require.Equal(t, string(models.PeriodStatusCompleted), done.Status)
	require.EqualValues(t, 0, countActive(t, db))
}

func TestPeriodServiceCreateValidatesDates(t *testing.T) {
	_, svc, _ := setupPeriodService(t)
	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)

	_, err := svc.Create(context.Background(), Actor{ID: 1}, dto.PeriodCreateRequest{Name: "Broken", StartDate: start, EndDate: &end})
	require.ErrorIs(t, err, ErrInvalidPeriodDates)

	_, err = svc.Create(context.Background(), Actor{ID: 1}, dto.PeriodCreateRequest{Name: "", StartDate: start})
	require.Error(t, err)
}

func TestPeriodServiceListFiltersByStatus(t *testing.T) {
	db, svc, _ := setupPeriodService(t)
	seedPeriod(t, db, "A", models.PeriodStatusCompleted)
	seedPeriod(t, db, "B", models.PeriodStatusCompleted)
	seedPeriod(t, db, "C", models.PeriodStatusActive)

	result, err := svc.List(context.Background(), dto.PeriodListRequest{Status: "completed", Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.EqualValues(t, 2, result.Pagination.TotalItems)
	require.Equal(t, 2, result.Pagination.TotalPages)

	_, err = svc.List(context.Background(), dto.PeriodListRequest{Status: "archived"})
	require.Error(t, err)
}

func TestPartialIndexRejectsSecondActivePeriod(t *testing.T) {
	db := setupLedgerDB(t)
	seedPeriod(t, db, "First", models.PeriodStatusActive)

	second := models.Period{Name: "Second", StartDate: time.Now(), Status: models.PeriodStatusActive}
	require.Error(t, db.Create(&second).Error)
}

type countingPeriodRepo struct {
	repository.PeriodRepository
	transitions int
}

func (r *countingPeriodRepo) Activate(ctx context.Context, id uint, at time.Time) (models.Period, error) {
	r.transitions++
	return r.PeriodRepository.Activate(ctx, id, at)
}

func (r *countingPeriodRepo) Complete(ctx context.Context, id uint, at time.Time) (models.Period, error) {
	r.transitions++
	return r.PeriodRepository.Complete(ctx, id, at)
}

func TestPeriodServiceChecksLifecycleBeforeUpdating(t *testing.T) {
	db := setupLedgerDB(t)
	repo := &countingPeriodRepo{PeriodRepository: repository.NewPeriodRepository(db)}
	svc := NewPeriodService(repo, utils.NewValidator(), nil, testLogger())
	ctx := context.Background()
	admin := Actor{ID: 1, Role: models.RoleAdmin}

	active := seedPeriod(t, db, "Current", models.PeriodStatusActive)
	completed := seedPeriod(t, db, "Old", models.PeriodStatusCompleted)
	planned := seedPeriod(t, db, "Next", models.PeriodStatusPlanned)

	_, err := svc.Activate(ctx, admin, completed.ID)
	require.ErrorIs(t, err, ErrInvalidPeriodTransition)
	_, err = svc.Activate(ctx, admin, active.ID)
	require.ErrorIs(t, err, ErrInvalidPeriodTransition)
	_, err = svc.Complete(ctx, admin, planned.ID)
	require.ErrorIs(t, err, ErrInvalidPeriodTransition)
	_, err = svc.Complete(ctx, admin, 4242)
	require.ErrorIs(t, err, ErrPeriodNotFound)
	require.Zero(t, repo.transitions)

	current, err := svc.GetActivePeriod(ctx)
	require.NoError(t, err)
	require.Equal(t, active.ID, current.ID)

	_, err = svc.Activate(ctx, admin, planned.ID)
	require.NoError(t, err)
	require.Equal(t, 1, repo.transitions)
}
