package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	"github.com/noah-isme/tutorhub-api/internal/utils"
)

type recordingInvalidator struct {
	periods []uint
}

func (r *recordingInvalidator) InvalidateLeaderboard(_ context.Context, periodID uint) {
	r.periods = append(r.periods, periodID)
}

type recordingPublisher struct {
	events []LedgerEvent
}

func (r *recordingPublisher) Publish(_ context.Context, event LedgerEvent) {
	r.events = append(r.events, event)
}

type degradedCalculator struct {
	BalanceCalculator
}

func (degradedCalculator) CalculateUserPoints(context.Context, uint, *uint) Aggregate {
	return Aggregate{Degraded: true, Err: gorm.ErrInvalidDB}
}

type ledgerFixture struct {
	db          *gorm.DB
	svc         LedgerService
	balances    BalanceCalculator
	activity    *stubActivityRecorder
	invalidator *recordingInvalidator
	publisher   *recordingPublisher
	tutor       Actor
	student     models.User
}

func setupLedgerService(t *testing.T, withActivePeriod bool) *ledgerFixture {
	t.Helper()

	db := setupLedgerDB(t)
	if withActivePeriod {
		seedPeriod(t, db, "Active", models.PeriodStatusActive)
	}
	tutor := seedUser(t, db, "Tia Tutor", models.RoleTutor)
	student := seedUser(t, db, "Sam Student", models.RoleStudent)

	validate := utils.NewValidator()
	periods := NewPeriodService(repository.NewPeriodRepository(db), validate, nil, testLogger())
	balances := NewBalanceService(repository.NewBalanceRepository(db), periods, testLogger())

	fixture := &ledgerFixture{
		db:          db,
		balances:    balances,
		activity:    &stubActivityRecorder{},
		invalidator: &recordingInvalidator{},
		publisher:   &recordingPublisher{},
		tutor:       Actor{ID: tutor.ID, Role: models.RoleTutor},
		student:     student,
	}
	fixture.svc = NewLedgerService(
		repository.NewLedgerRepository(db),
		repository.NewUserRepository(db),
		periods,
		balances,
		LedgerDependencies{Activity: fixture.activity, Leaderboard: fixture.invalidator, Events: fixture.publisher},
		validate,
		testLogger(),
	)
	return fixture
}

func TestLedgerWritesRequireActivePeriod(t *testing.T) {
	f := setupLedgerService(t, false)
	ctx := context.Background()

	_, err := f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{StudentID: f.student.ID, Points: 10, Reason: "Homework"})
	require.ErrorIs(t, err, ErrNoActivePeriod)

	_, err = f.svc.RecordExperience(ctx, f.tutor, dto.ExperienceRequest{StudentID: f.student.ID, Amount: 5, Reason: "Attendance"})
	require.ErrorIs(t, err, ErrNoActivePeriod)

	var count int64
	require.NoError(t, f.db.Model(&models.PointsTransaction{}).Count(&count).Error)
	require.Zero(t, count)
	require.Empty(t, f.publisher.events)
}

func TestLedgerAwardWithExperienceDualCounts(t *testing.T) {
	f := setupLedgerService(t, true)
	ctx := context.Background()

	plain, err := f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{StudentID: f.student.ID, Points: 30, Reason: "<b>Great</b> work"})
	require.NoError(t, err)
	require.Equal(t, "Great work", plain.Points.Reason)
	require.Equal(t, f.tutor.ID, plain.Points.TutorID)
	require.Nil(t, plain.Experience)
	require.EqualValues(t, 30, f.balances.CalculateUserExperience(ctx, f.student.ID, nil).Value)

	withExperience, err := f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{
		StudentID:        f.student.ID,
		Points:           5,
		Reason:           "Project demo",
		ExperienceAmount: ptrInt64(10),
	})
	require.NoError(t, err)
	require.NotNil(t, withExperience.Experience)
	require.Equal(t, withExperience.Points.PeriodID, withExperience.Experience.PeriodID)

	require.EqualValues(t, 35, f.balances.CalculateUserPoints(ctx, f.student.ID, nil).Value)
	require.EqualValues(t, 45, f.balances.CalculateUserExperience(ctx, f.student.ID, nil).Value)

	require.Len(t, f.publisher.events, 2)
	require.Equal(t, models.ActionPointsAwarded, f.publisher.events[0].Kind)
	require.Equal(t, f.student.ID, f.publisher.events[0].StudentID)
	require.Len(t, f.invalidator.periods, 2)
	require.Len(t, f.activity.entries, 2)
	require.Equal(t, "points_transaction", f.activity.entries[0].EntityType)
}

func TestLedgerAwardRejectsInvalidInput(t *testing.T) {
	f := setupLedgerService(t, true)
	ctx := context.Background()

	_, err := f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{StudentID: f.student.ID, Points: 0, Reason: "Nothing"})
	require.Error(t, err)
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	_, err = f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{StudentID: f.student.ID, Points: 3, Reason: "<b></b>"})
	require.ErrorIs(t, err, ErrInvalidReason)

	_, err = f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{StudentID: 4040, Points: 3, Reason: "Ghost"})
	require.ErrorIs(t, err, ErrStudentNotFound)

	_, err = f.svc.RecordExperience(ctx, f.tutor, dto.ExperienceRequest{StudentID: f.student.ID, Amount: 0, Reason: "Zero"})
	require.Error(t, err)
}

func TestLedgerRejectsNegativeExperience(t *testing.T) {
	f := setupLedgerService(t, true)
	ctx := context.Background()

	_, err := f.svc.RecordExperience(ctx, f.tutor, dto.ExperienceRequest{StudentID: f.student.ID, Amount: -50, Reason: "Penalty"})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	require.Equal(t, "amount", validationErrs[0].Field())

	_, err = f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{
		StudentID:        f.student.ID,
		Points:           5,
		Reason:           "Quiz",
		ExperienceAmount: ptrInt64(-5),
	})
	require.ErrorAs(t, err, &validationErrs)
	require.Equal(t, "experience_amount", validationErrs[0].Field())

	var count int64
	require.NoError(t, f.db.Model(&models.ExperienceTransaction{}).Count(&count).Error)
	require.Zero(t, count)
	require.Zero(t, f.balances.CalculateUserExperience(ctx, f.student.ID, nil).Value)
}

func TestLedgerRedeemChecksBalance(t *testing.T) {
	f := setupLedgerService(t, true)
	ctx := context.Background()

	_, err := f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{StudentID: f.student.ID, Points: 50, Reason: "Quiz"})
	require.NoError(t, err)

	_, err = f.svc.RedeemPoints(ctx, f.tutor, dto.RedeemPointsRequest{StudentID: f.student.ID, Points: 60, Reason: "Voucher"})
	require.ErrorIs(t, err, ErrInsufficientPoints)

	redeemed, err := f.svc.RedeemPoints(ctx, f.tutor, dto.RedeemPointsRequest{StudentID: f.student.ID, Points: 20, Reason: "Voucher"})
	require.NoError(t, err)
	require.Equal(t, string(models.PointsTransactionRedeem), redeemed.Type)

	require.EqualValues(t, 30, f.balances.CalculateUserPoints(ctx, f.student.ID, nil).Value)
	require.EqualValues(t, 50, f.balances.CalculateUserExperience(ctx, f.student.ID, nil).Value)
	require.EqualValues(t, -20, f.publisher.events[len(f.publisher.events)-1].Amount)
}

func TestLedgerRedeemRefusesWhenBalanceDegraded(t *testing.T) {
	f := setupLedgerService(t, true)
	validate := utils.NewValidator()
	periods := NewPeriodService(repository.NewPeriodRepository(f.db), validate, nil, testLogger())
	svc := NewLedgerService(
		repository.NewLedgerRepository(f.db),
		repository.NewUserRepository(f.db),
		periods,
		degradedCalculator{},
		LedgerDependencies{},
		validate,
		testLogger(),
	)

	_, err := svc.RedeemPoints(context.Background(), f.tutor, dto.RedeemPointsRequest{StudentID: f.student.ID, Points: 1, Reason: "Voucher"})
	require.ErrorIs(t, err, ErrBalanceUnavailable)
}

func TestLedgerRollbackExcludesEntryOnce(t *testing.T) {
	f := setupLedgerService(t, true)
	ctx := context.Background()
	admin := Actor{ID: 1, Role: models.RoleAdmin}

	kept, err := f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{StudentID: f.student.ID, Points: 50, Reason: "Quiz"})
	require.NoError(t, err)
	mistaken, err := f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{StudentID: f.student.ID, Points: 30, Reason: "Duplicate"})
	require.NoError(t, err)
	_, err = f.svc.RedeemPoints(ctx, f.tutor, dto.RedeemPointsRequest{StudentID: f.student.ID, Points: 20, Reason: "Voucher"})
	require.NoError(t, err)

	record, err := f.svc.Rollback(ctx, admin, models.TransactionKindPoints, mistaken.Points.ID, dto.RollbackRequest{Reason: "Awarded twice"})
	require.NoError(t, err)
	require.Equal(t, admin.ID, record.RolledBackBy)
	require.Equal(t, mistaken.Points.ID, record.TransactionID)

	require.EqualValues(t, 30, f.balances.CalculateUserPoints(ctx, f.student.ID, nil).Value)
	require.EqualValues(t, 50, f.balances.CalculateUserExperience(ctx, f.student.ID, nil).Value)

	_, err = f.svc.Rollback(ctx, admin, models.TransactionKindPoints, mistaken.Points.ID, dto.RollbackRequest{Reason: "Again"})
	require.ErrorIs(t, err, ErrAlreadyRolledBack)

	_, err = f.svc.Rollback(ctx, admin, models.TransactionKindExperience, 777, dto.RollbackRequest{Reason: "Missing"})
	require.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = f.svc.Rollback(ctx, admin, models.TransactionKind("badges"), kept.Points.ID, dto.RollbackRequest{Reason: "Unknown"})
	require.ErrorIs(t, err, ErrInvalidTransactionKind)

	var rollbacks []models.TransactionRollback
	require.NoError(t, f.db.Find(&rollbacks).Error)
	require.Len(t, rollbacks, 1)
	amount, ok := rollbacks[0].Metadata["amount"].(json.Number)
	require.True(t, ok)
	stored, err := amount.Int64()
	require.NoError(t, err)
	require.EqualValues(t, 30, stored)

	var entry models.PointsTransaction
	require.NoError(t, f.db.First(&entry, mistaken.Points.ID).Error)
	require.True(t, entry.RolledBack)
	require.Equal(t, int64(30), entry.Points)

	last := f.publisher.events[len(f.publisher.events)-1]
	require.Equal(t, models.ActionTransactionRolled, last.Kind)
	require.EqualValues(t, -30, last.Amount)
}

func TestLedgerRollbackAllowedInCompletedPeriod(t *testing.T) {
	f := setupLedgerService(t, false)
	closed := seedPeriod(t, f.db, "Closed", models.PeriodStatusCompleted)
	entry := seedExperience(t, f.db, f.student.ID, closed.ID, 12, false)

	_, err := f.svc.Rollback(context.Background(), Actor{ID: 1, Role: models.RoleBoardMember}, models.TransactionKindExperience, entry.ID, dto.RollbackRequest{Reason: "Late correction"})
	require.NoError(t, err)

	require.Zero(t, f.balances.CalculateUserExperience(context.Background(), f.student.ID, &closed.ID).Value)
	require.Equal(t, []uint{closed.ID}, f.invalidator.periods)
}

func TestLedgerListTransactionsNewestFirst(t *testing.T) {
	f := setupLedgerService(t, true)
	ctx := context.Background()

	clock := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	if concrete, ok := f.svc.(*ledgerService); ok {
		concrete.now = func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}
	}

	first, err := f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{StudentID: f.student.ID, Points: 5, Reason: "First"})
	require.NoError(t, err)
	second, err := f.svc.AwardPoints(ctx, f.tutor, dto.AwardPointsRequest{StudentID: f.student.ID, Points: 6, Reason: "Second"})
	require.NoError(t, err)
	_, err = f.svc.RecordExperience(ctx, f.tutor, dto.ExperienceRequest{StudentID: f.student.ID, Amount: 2, Reason: "Late"})
	require.NoError(t, err)
	_, err = f.svc.Rollback(ctx, Actor{ID: 1, Role: models.RoleAdmin}, models.TransactionKindPoints, first.Points.ID, dto.RollbackRequest{Reason: "Mistake"})
	require.NoError(t, err)

	history, err := f.svc.ListTransactions(ctx, f.student.ID, dto.TransactionListRequest{})
	require.NoError(t, err)
	require.NotNil(t, history.Points)
	require.NotNil(t, history.Experience)
	require.Len(t, history.Points.Items, 1)
	require.Equal(t, second.Points.ID, history.Points.Items[0].ID)
	require.Len(t, history.Experience.Items, 1)

	all, err := f.svc.ListTransactions(ctx, f.student.ID, dto.TransactionListRequest{Kind: "POINTS", IncludeRolledBack: true, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Nil(t, all.Experience)
	require.Len(t, all.Points.Items, 2)
	require.Equal(t, second.Points.ID, all.Points.Items[0].ID)
	require.True(t, all.Points.Items[1].RolledBack)

	_, err = f.svc.ListTransactions(ctx, f.student.ID, dto.TransactionListRequest{Kind: "badges"})
	require.Error(t, err)
}
