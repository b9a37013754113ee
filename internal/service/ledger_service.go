package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/observability"
	"github.com/noah-isme/tutorhub-api/internal/repository"
)

var (
	// ErrTransactionNotFound indicates the ledger entry does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrAlreadyRolledBack indicates the ledger entry was rolled back before.
	ErrAlreadyRolledBack = errors.New("transaction already rolled back")
	// ErrInsufficientPoints indicates a redemption larger than the current balance.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrBalanceUnavailable indicates the balance could not be read to authorise a redemption.
	ErrBalanceUnavailable = errors.New("balance temporarily unavailable")
	// ErrStudentNotFound indicates the ledger subject does not exist.
	ErrStudentNotFound = errors.New("student not found")
	// ErrInvalidReason indicates the reason was empty after sanitisation.
	ErrInvalidReason = errors.New("reason must not be empty")
	// ErrInvalidTransactionKind indicates an unknown ledger kind.
	ErrInvalidTransactionKind = errors.New("unknown transaction kind")
)

// LeaderboardInvalidator drops cached rankings for a period after its ledger changes.
type LeaderboardInvalidator interface {
	InvalidateLeaderboard(ctx context.Context, periodID uint)
}

// LedgerService appends ledger entries in the ACTIVE period and rolls them back.
type LedgerService interface {
	AwardPoints(ctx context.Context, actor Actor, req dto.AwardPointsRequest) (dto.AwardResponse, error)
	RedeemPoints(ctx context.Context, actor Actor, req dto.RedeemPointsRequest) (dto.PointsTransactionResponse, error)
	RecordExperience(ctx context.Context, actor Actor, req dto.ExperienceRequest) (dto.ExperienceTransactionResponse, error)
	Rollback(ctx context.Context, actor Actor, kind models.TransactionKind, id uint, req dto.RollbackRequest) (dto.RollbackResponse, error)
	ListTransactions(ctx context.Context, studentID uint, req dto.TransactionListRequest) (dto.TransactionHistoryResponse, error)
}

// LedgerDependencies groups the collaborators notified after a write commits. Any of them
// may be nil.
type LedgerDependencies struct {
	Activity    ActivityRecorder
	Leaderboard LeaderboardInvalidator
	Events      LedgerEventPublisher
}

type ledgerService struct {
	repo      repository.LedgerRepository
	users     repository.UserRepository
	periods   PeriodResolver
	balances  BalanceCalculator
	deps      LedgerDependencies
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewLedgerService constructs the ledger write service.
func NewLedgerService(
	repo repository.LedgerRepository,
	users repository.UserRepository,
	periods PeriodResolver,
	balances BalanceCalculator,
	deps LedgerDependencies,
	validate *validator.Validate,
	logger zerolog.Logger,
) LedgerService {
	return &ledgerService{
		repo:      repo,
		users:     users,
		periods:   periods,
		balances:  balances,
		deps:      deps,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "ledger_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/tutorhub-api/internal/service/ledger"),
		now:       time.Now,
	}
}

func (s *ledgerService) AwardPoints(ctx context.Context, actor Actor, req dto.AwardPointsRequest) (dto.AwardResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.points.award", trace.WithAttributes(attribute.Int64("ledger.student_id", int64(req.StudentID))))
	defer span.End()

	reason, period, err := s.prepareWrite(ctx, req, req.StudentID, req.Reason)
	if err != nil {
		return dto.AwardResponse{}, s.fail(span, err)
	}

	now := s.now().UTC()
	award := models.PointsTransaction{
		Points:    req.Points,
		Type:      models.PointsTransactionAward,
		Reason:    reason,
		StudentID: req.StudentID,
		TutorID:   actor.ID,
		PeriodID:  period.ID,
		CreatedAt: now,
	}
	var experience *models.ExperienceTransaction
	if req.ExperienceAmount != nil {
		experience = &models.ExperienceTransaction{
			Amount:    *req.ExperienceAmount,
			Reason:    reason,
			StudentID: req.StudentID,
			TutorID:   actor.ID,
			PeriodID:  period.ID,
			CreatedAt: now,
		}
	}

	if err := s.repo.CreateAward(ctx, &award, experience); err != nil {
		s.logger.Error().Err(err).Uint("student_id", req.StudentID).Msg("failed to append award")
		return dto.AwardResponse{}, s.fail(span, err)
	}

	observability.LedgerWrites().WithLabelValues("award").Inc()
	response := dto.AwardResponse{Points: dto.NewPointsTransactionResponse(award)}
	metadata := map[string]interface{}{
		"student_id": award.StudentID,
		"period_id":  award.PeriodID,
		"points":     award.Points,
	}
	if experience != nil {
		observability.LedgerWrites().WithLabelValues("experience").Inc()
		converted := dto.NewExperienceTransactionResponse(*experience)
		response.Experience = &converted
		metadata["experience_transaction_id"] = experience.ID
		metadata["experience_amount"] = experience.Amount
	}

	s.afterWrite(ctx, actor, models.ActionPointsAwarded, "points_transaction", award.ID, metadata, LedgerEvent{
		Kind:            models.ActionPointsAwarded,
		TransactionKind: models.TransactionKindPoints,
		TransactionID:   award.ID,
		StudentID:       award.StudentID,
		PeriodID:        award.PeriodID,
		Amount:          award.Points,
		OccurredAt:      now,
	})

	return response, nil
}

// RedeemPoints spends points from the student's balance in the active period. The balance check
// and the insert are not serialized, so concurrent redemptions can overdraw; the calculator then
// clamps the reported balance at zero.
func (s *ledgerService) RedeemPoints(ctx context.Context, actor Actor, req dto.RedeemPointsRequest) (dto.PointsTransactionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.points.redeem", trace.WithAttributes(attribute.Int64("ledger.student_id", int64(req.StudentID))))
	defer span.End()

	reason, period, err := s.prepareWrite(ctx, req, req.StudentID, req.Reason)
	if err != nil {
		return dto.PointsTransactionResponse{}, s.fail(span, err)
	}

	balance := s.balances.CalculateUserPoints(ctx, req.StudentID, &period.ID)
	if balance.Degraded {
		return dto.PointsTransactionResponse{}, s.fail(span, ErrBalanceUnavailable)
	}
	if balance.Value < req.Points {
		return dto.PointsTransactionResponse{}, ErrInsufficientPoints
	}

	now := s.now().UTC()
	redeem := models.PointsTransaction{
		Points:    req.Points,
		Type:      models.PointsTransactionRedeem,
		Reason:    reason,
		StudentID: req.StudentID,
		TutorID:   actor.ID,
		PeriodID:  period.ID,
		CreatedAt: now,
	}
	if err := s.repo.CreatePoints(ctx, &redeem); err != nil {
		s.logger.Error().Err(err).Uint("student_id", req.StudentID).Msg("failed to append redemption")
		return dto.PointsTransactionResponse{}, s.fail(span, err)
	}

	observability.LedgerWrites().WithLabelValues("redeem").Inc()
	s.afterWrite(ctx, actor, models.ActionPointsRedeemed, "points_transaction", redeem.ID, map[string]interface{}{
		"student_id":     redeem.StudentID,
		"period_id":      redeem.PeriodID,
		"points":         redeem.Points,
		"balance_before": balance.Value,
	}, LedgerEvent{
		Kind:            models.ActionPointsRedeemed,
		TransactionKind: models.TransactionKindPoints,
		TransactionID:   redeem.ID,
		StudentID:       redeem.StudentID,
		PeriodID:        redeem.PeriodID,
		Amount:          -redeem.Points,
		OccurredAt:      now,
	})

	return dto.NewPointsTransactionResponse(redeem), nil
}

func (s *ledgerService) RecordExperience(ctx context.Context, actor Actor, req dto.ExperienceRequest) (dto.ExperienceTransactionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.experience.record", trace.WithAttributes(attribute.Int64("ledger.student_id", int64(req.StudentID))))
	defer span.End()

	reason, period, err := s.prepareWrite(ctx, req, req.StudentID, req.Reason)
	if err != nil {
		return dto.ExperienceTransactionResponse{}, s.fail(span, err)
	}

	now := s.now().UTC()
	entry := models.ExperienceTransaction{
		Amount:    req.Amount,
		Reason:    reason,
		StudentID: req.StudentID,
		TutorID:   actor.ID,
		PeriodID:  period.ID,
		CreatedAt: now,
	}
	if err := s.repo.CreateExperience(ctx, &entry); err != nil {
		s.logger.Error().Err(err).Uint("student_id", req.StudentID).Msg("failed to append experience")
		return dto.ExperienceTransactionResponse{}, s.fail(span, err)
	}

	observability.LedgerWrites().WithLabelValues("experience").Inc()
	s.afterWrite(ctx, actor, models.ActionExperienceRecorded, "experience_transaction", entry.ID, map[string]interface{}{
		"student_id": entry.StudentID,
		"period_id":  entry.PeriodID,
		"amount":     entry.Amount,
	}, LedgerEvent{
		Kind:            models.ActionExperienceRecorded,
		TransactionKind: models.TransactionKindExperience,
		TransactionID:   entry.ID,
		StudentID:       entry.StudentID,
		PeriodID:        entry.PeriodID,
		Amount:          entry.Amount,
		OccurredAt:      now,
	})

	return dto.NewExperienceTransactionResponse(entry), nil
}

// Rollback marks a ledger entry as rolled back. Entries of COMPLETED periods may be
// rolled back too; balances of that period change accordingly.
func (s *ledgerService) Rollback(ctx context.Context, actor Actor, kind models.TransactionKind, id uint, req dto.RollbackRequest) (dto.RollbackResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.rollback", trace.WithAttributes(
		attribute.String("ledger.kind", string(kind)),
		attribute.Int64("ledger.transaction_id", int64(id)),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.RollbackResponse{}, err
	}
	reason := strings.TrimSpace(s.sanitizer.Sanitize(req.Reason))
	if reason == "" {
		return dto.RollbackResponse{}, ErrInvalidReason
	}

	target, err := s.loadTarget(ctx, kind, id)
	if err != nil {
		return dto.RollbackResponse{}, s.fail(span, err)
	}
	if target.rolledBack {
		return dto.RollbackResponse{}, ErrAlreadyRolledBack
	}

	record := models.TransactionRollback{
		TransactionKind: kind,
		TransactionID:   id,
		RolledBackBy:    actor.ID,
		Reason:          reason,
		Metadata: map[string]interface{}{
			"student_id": target.studentID,
			"period_id":  target.periodID,
			"amount":     target.amount,
			"type":       target.pointsType,
		},
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Rollback(ctx, &record); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyRolledBack):
			return dto.RollbackResponse{}, ErrAlreadyRolledBack
		case errors.Is(err, gorm.ErrRecordNotFound):
			return dto.RollbackResponse{}, ErrTransactionNotFound
		}
		s.logger.Error().Err(err).Str("kind", string(kind)).Uint("transaction_id", id).Msg("failed to roll back transaction")
		return dto.RollbackResponse{}, s.fail(span, err)
	}

	observability.LedgerWrites().WithLabelValues("rollback").Inc()
	s.afterWrite(ctx, actor, models.ActionTransactionRolled, string(kind)+"_transaction", id, map[string]interface{}{
		"student_id":  target.studentID,
		"period_id":   target.periodID,
		"amount":      target.amount,
		"rollback_id": record.ID,
	}, LedgerEvent{
		Kind:            models.ActionTransactionRolled,
		TransactionKind: kind,
		TransactionID:   id,
		StudentID:       target.studentID,
		PeriodID:        target.periodID,
		Amount:          -target.signedAmount(),
		OccurredAt:      record.CreatedAt,
	})

	return dto.NewRollbackResponse(record), nil
}

func (s *ledgerService) ListTransactions(ctx context.Context, studentID uint, req dto.TransactionListRequest) (dto.TransactionHistoryResponse, error) {
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	if err := s.validator.Struct(req); err != nil {
		return dto.TransactionHistoryResponse{}, err
	}

	filter := repository.TransactionFilter{
		StudentID:         studentID,
		PeriodID:          req.PeriodID,
		IncludeRolledBack: req.IncludeRolledBack,
		Page:              req.Page,
		PageSize:          req.PageSize,
	}
	response := dto.TransactionHistoryResponse{StudentID: studentID}

	if req.Kind == "" || req.Kind == string(models.TransactionKindPoints) {
		entries, total, err := s.repo.ListPoints(ctx, filter)
		if err != nil {
			return dto.TransactionHistoryResponse{}, err
		}
		items := make([]dto.PointsTransactionResponse, 0, len(entries))
		for _, entry := range entries {
			items = append(items, dto.NewPointsTransactionResponse(entry))
		}
		response.Points = &dto.PointsHistoryResponse{Items: items, Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total)}
	}

	if req.Kind == "" || req.Kind == string(models.TransactionKindExperience) {
		entries, total, err := s.repo.ListExperience(ctx, filter)
		if err != nil {
			return dto.TransactionHistoryResponse{}, err
		}
		items := make([]dto.ExperienceTransactionResponse, 0, len(entries))
		for _, entry := range entries {
			items = append(items, dto.NewExperienceTransactionResponse(entry))
		}
		response.Experience = &dto.ExperienceHistoryResponse{Items: items, Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total)}
	}

	return response, nil
}

// prepareWrite validates the payload, sanitises the reason, checks the student exists and
// resolves the ACTIVE period the entry will belong to.
func (s *ledgerService) prepareWrite(ctx context.Context, payload interface{}, studentID uint, rawReason string) (string, models.Period, error) {
	if err := s.validator.Struct(payload); err != nil {
		return "", models.Period{}, err
	}

	reason := strings.TrimSpace(s.sanitizer.Sanitize(rawReason))
	if reason == "" {
		return "", models.Period{}, ErrInvalidReason
	}

	if s.users != nil {
		if _, err := s.users.GetByID(ctx, studentID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", models.Period{}, ErrStudentNotFound
			}
			return "", models.Period{}, err
		}
	}

	period, err := s.periods.RequireActivePeriod(ctx)
	if err != nil {
		return "", models.Period{}, err
	}
	return reason, period, nil
}

type rollbackTarget struct {
	studentID  uint
	periodID   uint
	amount     int64
	pointsType string
	rolledBack bool
}

func (t rollbackTarget) signedAmount() int64 {
	if t.pointsType == string(models.PointsTransactionRedeem) {
		return -t.amount
	}
	return t.amount
}

func (s *ledgerService) loadTarget(ctx context.Context, kind models.TransactionKind, id uint) (rollbackTarget, error) {
	switch kind {
	case models.TransactionKindPoints:
		entry, err := s.repo.GetPoints(ctx, id)
		if err != nil {
			return rollbackTarget{}, translateLedgerLookup(err)
		}
		return rollbackTarget{
			studentID:  entry.StudentID,
			periodID:   entry.PeriodID,
			amount:     entry.Points,
			pointsType: string(entry.Type),
			rolledBack: entry.RolledBack,
		}, nil
	case models.TransactionKindExperience:
		entry, err := s.repo.GetExperience(ctx, id)
		if err != nil {
			return rollbackTarget{}, translateLedgerLookup(err)
		}
		return rollbackTarget{
			studentID:  entry.StudentID,
			periodID:   entry.PeriodID,
			amount:     entry.Amount,
			rolledBack: entry.RolledBack,
		}, nil
	default:
		return rollbackTarget{}, ErrInvalidTransactionKind
	}
}

func translateLedgerLookup(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTransactionNotFound
	}
	return err
}

func (s *ledgerService) afterWrite(ctx context.Context, actor Actor, action, entityType string, entityID uint, metadata map[string]interface{}, event LedgerEvent) {
	recordActivity(ctx, s.deps.Activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		Action:     action,
		EntityType: entityType,
		EntityID:   &entityID,
		Metadata:   metadata,
	})

	if s.deps.Leaderboard != nil {
		s.deps.Leaderboard.InvalidateLeaderboard(ctx, event.PeriodID)
	}
	if s.deps.Events != nil {
		s.deps.Events.Publish(ctx, event)
	}
}

func (s *ledgerService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
