package service

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/observability"
	"github.com/noah-isme/tutorhub-api/internal/repository"
)

// Aggregate is the outcome of a single-user balance calculation. When the underlying
// query fails Value is 0, Degraded is true and Err carries the cause.
type Aggregate struct {
	Value    int64
	PeriodID *uint
	Degraded bool
	Err      error
}

// AggregateMap is the outcome of a batched calculation. Every requested id has an
// entry, including when the calculation degraded.
type AggregateMap struct {
	Values   map[uint]int64
	PeriodID *uint
	Degraded bool
	Err      error
}

// BalanceCalculator derives points and experience balances from the ledger at read time.
// A nil periodID resolves to the ACTIVE period; with no ACTIVE period every balance is 0.
type BalanceCalculator interface {
	CalculateUserPoints(ctx context.Context, userID uint, periodID *uint) Aggregate
	CalculateMultipleUserPoints(ctx context.Context, userIDs []uint, periodID *uint) AggregateMap
	CalculateUserExperience(ctx context.Context, userID uint, periodID *uint) Aggregate
	CalculateMultipleUserExperience(ctx context.Context, userIDs []uint, periodID *uint) AggregateMap
}

const (
	calculatorPoints     = "points"
	calculatorExperience = "experience"
)

type balanceService struct {
	repo    repository.BalanceRepository
	periods PeriodResolver
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewBalanceService constructs the balance calculators.
func NewBalanceService(repo repository.BalanceRepository, periods PeriodResolver, logger zerolog.Logger) BalanceCalculator {
	return &balanceService{
		repo:    repo,
		periods: periods,
		logger:  logger.With().Str("component", "balance_service").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/tutorhub-api/internal/service/balance"),
	}
}

func (s *balanceService) CalculateUserPoints(ctx context.Context, userID uint, periodID *uint) Aggregate {
	ctx, span := s.tracer.Start(ctx, "ledger.points.single", trace.WithAttributes(attribute.Int64("ledger.user_id", int64(userID))))
	defer span.End()

	result := s.points(ctx, span, []uint{userID}, periodID)
	return Aggregate{Value: result.Values[userID], PeriodID: result.PeriodID, Degraded: result.Degraded, Err: result.Err}
}

func (s *balanceService) CalculateMultipleUserPoints(ctx context.Context, userIDs []uint, periodID *uint) AggregateMap {
	ctx, span := s.tracer.Start(ctx, "ledger.points.batch")
	defer span.End()

	ids := uniqueIDs(userIDs)
	span.SetAttributes(attribute.Int("ledger.user_count", len(ids)))
	return s.points(ctx, span, ids, periodID)
}

func (s *balanceService) CalculateUserExperience(ctx context.Context, userID uint, periodID *uint) Aggregate {
	ctx, span := s.tracer.Start(ctx, "ledger.experience.single", trace.WithAttributes(attribute.Int64("ledger.user_id", int64(userID))))
	defer span.End()

	result := s.experience(ctx, span, []uint{userID}, periodID)
	return Aggregate{Value: result.Values[userID], PeriodID: result.PeriodID, Degraded: result.Degraded, Err: result.Err}
}

func (s *balanceService) CalculateMultipleUserExperience(ctx context.Context, userIDs []uint, periodID *uint) AggregateMap {
	ctx, span := s.tracer.Start(ctx, "ledger.experience.batch")
	defer span.End()

	ids := uniqueIDs(userIDs)
	span.SetAttributes(attribute.Int("ledger.user_count", len(ids)))
	return s.experience(ctx, span, ids, periodID)
}

// points folds AWARD minus REDEEM per student and clamps negative balances to 0.
func (s *balanceService) points(ctx context.Context, span trace.Span, ids []uint, periodID *uint) AggregateMap {
	result := zeroMap(ids)
	if len(ids) == 0 {
		return result
	}

	resolved, err := s.resolvePeriod(ctx, periodID)
	if err != nil {
		return s.degrade(span, calculatorPoints, ids, err)
	}
	if resolved == nil {
		return result
	}
	result.PeriodID = resolved
	span.SetAttributes(attribute.Int64("ledger.period_id", int64(*resolved)))

	rows, err := s.repo.SumPointsByType(ctx, *resolved, ids)
	if err != nil {
		degraded := s.degrade(span, calculatorPoints, ids, err)
		degraded.PeriodID = resolved
		return degraded
	}

	for _, row := range rows {
		if _, requested := result.Values[row.StudentID]; !requested {
			continue
		}
		switch row.Type {
		case models.PointsTransactionAward:
			result.Values[row.StudentID] += row.Total
		case models.PointsTransactionRedeem:
			result.Values[row.StudentID] -= row.Total
		}
	}
	for id, value := range result.Values {
		if value < 0 {
			result.Values[id] = 0
		}
	}

	return result
}

// experience adds explicit experience deltas to awarded points. Both sums count, so an
// award that also carries an experience entry contributes twice.
func (s *balanceService) experience(ctx context.Context, span trace.Span, ids []uint, periodID *uint) AggregateMap {
	result := zeroMap(ids)
	if len(ids) == 0 {
		return result
	}

	resolved, err := s.resolvePeriod(ctx, periodID)
	if err != nil {
		return s.degrade(span, calculatorExperience, ids, err)
	}
	if resolved == nil {
		return result
	}
	result.PeriodID = resolved
	span.SetAttributes(attribute.Int64("ledger.period_id", int64(*resolved)))

	deltas, err := s.repo.SumExperience(ctx, *resolved, ids)
	if err != nil {
		degraded := s.degrade(span, calculatorExperience, ids, err)
		degraded.PeriodID = resolved
		return degraded
	}
	awarded, err := s.repo.SumAwardedPoints(ctx, *resolved, ids)
	if err != nil {
		degraded := s.degrade(span, calculatorExperience, ids, err)
		degraded.PeriodID = resolved
		return degraded
	}

	for _, rows := range [][]repository.StudentSum{deltas, awarded} {
		for _, row := range rows {
			if _, requested := result.Values[row.StudentID]; requested {
				result.Values[row.StudentID] += row.Total
			}
		}
	}

	return result
}

func (s *balanceService) resolvePeriod(ctx context.Context, periodID *uint) (*uint, error) {
	if periodID != nil {
		id := *periodID
		return &id, nil
	}
	if s.periods == nil {
		return nil, nil
	}

	period, err := s.periods.GetActivePeriod(ctx)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, nil
	}
	id := period.ID
	return &id, nil
}

func (s *balanceService) degrade(span trace.Span, calculator string, ids []uint, err error) AggregateMap {
	span.RecordError(err)
	span.SetStatus(codes.Error, calculator+"_aggregation_failed")
	s.logger.Error().Err(err).Str("calculator", calculator).Int("user_count", len(ids)).Msg("balance calculation degraded to zero")
	observability.AggregationFailures().WithLabelValues(calculator).Inc()

	result := zeroMap(ids)
	result.Degraded = true
	result.Err = err
	return result
}

func zeroMap(ids []uint) AggregateMap {
	values := make(map[uint]int64, len(ids))
	for _, id := range ids {
		values[id] = 0
	}
	return AggregateMap{Values: values}
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	unique := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
