package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/observability"
	"github.com/noah-isme/tutorhub-api/internal/repository"
)

const maxLeaderboardSize = 100

// StatsService joins user identities with ledger-derived balances.
type StatsService interface {
	LeaderboardInvalidator
	GetUserWithCalculatedStats(ctx context.Context, userID uint, periodID *uint) (*dto.UserStatsResponse, error)
	BatchStats(ctx context.Context, req dto.BatchStatsRequest) (dto.BatchStatsResponse, error)
	Leaderboard(ctx context.Context, periodID *uint, limit int) (dto.LeaderboardResponse, error)
}

type statsService struct {
	users        repository.UserRepository
	periods      PeriodResolver
	balances     BalanceCalculator
	validator    *validator.Validate
	cache        *redis.Client
	cacheTTL     time.Duration
	defaultLimit int
	logger       zerolog.Logger
}

// NewStatsService constructs the composite accessor. A nil cache disables leaderboard caching.
func NewStatsService(users repository.UserRepository, periods PeriodResolver, balances BalanceCalculator, validate *validator.Validate, cache *redis.Client, ttl time.Duration, defaultLimit int, logger zerolog.Logger) StatsService {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &statsService{
		users:        users,
		periods:      periods,
		balances:     balances,
		validator:    validate,
		cache:        cache,
		cacheTTL:     ttl,
		defaultLimit: defaultLimit,
		logger:       logger.With().Str("component", "stats_service").Logger(),
	}
}

func (s *statsService) GetUserWithCalculatedStats(ctx context.Context, userID uint, periodID *uint) (*dto.UserStatsResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	response := &dto.UserStatsResponse{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Role:    string(user.Role),
		TutorID: user.TutorID,
	}

	resolved, err := s.resolvePeriod(ctx, periodID)
	if err != nil {
		s.logger.Error().Err(err).Uint("user_id", userID).Msg("failed to resolve period for stats")
		response.Degraded = true
		return response, nil
	}
	if resolved == nil {
		return response, nil
	}
	response.PeriodID = resolved

	var (
		wg         sync.WaitGroup
		points     Aggregate
		experience Aggregate
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		points = s.balances.CalculateUserPoints(ctx, userID, resolved)
	}()
	go func() {
		defer wg.Done()
		experience = s.balances.CalculateUserExperience(ctx, userID, resolved)
	}()
	wg.Wait()

	response.Points = points.Value
	response.Experience = experience.Value
	response.Degraded = points.Degraded || experience.Degraded
	return response, nil
}

func (s *statsService) BatchStats(ctx context.Context, req dto.BatchStatsRequest) (dto.BatchStatsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.BatchStatsResponse{}, err
	}

	ids := uniqueIDs(req.UserIDs)
	response := dto.BatchStatsResponse{Items: make([]dto.UserBalance, 0, len(ids))}

	resolved, err := s.resolvePeriod(ctx, req.PeriodID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to resolve period for batch stats")
		response.Degraded = true
	}
	response.PeriodID = resolved

	points, experience := s.batch(ctx, ids, resolved, err == nil)
	response.Degraded = response.Degraded || points.Degraded || experience.Degraded
	for _, id := range ids {
		response.Items = append(response.Items, dto.UserBalance{
			UserID:     id,
			Points:     points.Values[id],
			Experience: experience.Values[id],
		})
	}

	return response, nil
}

func (s *statsService) Leaderboard(ctx context.Context, periodID *uint, limit int) (dto.LeaderboardResponse, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}

	resolved, err := s.resolvePeriod(ctx, periodID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to resolve period for leaderboard")
		return dto.LeaderboardResponse{Entries: []dto.LeaderboardEntry{}, Degraded: true}, nil
	}
	if resolved == nil {
		return dto.LeaderboardResponse{Entries: []dto.LeaderboardEntry{}}, nil
	}

	cacheKey := leaderboardKey(*resolved, limit)
	if cached, ok := s.readLeaderboard(ctx, cacheKey); ok {
		return cached, nil
	}

	learners, err := s.users.ListByRoles(ctx, models.LearnerRoles)
	if err != nil {
		return dto.LeaderboardResponse{}, err
	}
	ids := make([]uint, 0, len(learners))
	for _, learner := range learners {
		ids = append(ids, learner.ID)
	}

	points, experience := s.batch(ctx, ids, resolved, true)
	entries := make([]dto.LeaderboardEntry, 0, len(learners))
	for _, learner := range learners {
		entries = append(entries, dto.LeaderboardEntry{
			UserID:     learner.ID,
			Name:       learner.Name,
			Role:       string(learner.Role),
			Points:     points.Values[learner.ID],
			Experience: experience.Values[learner.ID],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		if entries[i].Experience != entries[j].Experience {
			return entries[i].Experience > entries[j].Experience
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}

	response := dto.LeaderboardResponse{
		PeriodID: resolved,
		Entries:  entries,
		Degraded: points.Degraded || experience.Degraded,
	}
	if !response.Degraded {
		s.storeLeaderboard(ctx, cacheKey, response)
	}
	return response, nil
}

// InvalidateLeaderboard drops every cached leaderboard size of the period.
func (s *statsService) InvalidateLeaderboard(ctx context.Context, periodID uint) {
	if s.cache == nil {
		return
	}

	pattern := fmt.Sprintf("leaderboard:period:%d:*", periodID)
	iter := s.cache.Scan(ctx, 0, pattern, 100).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn().Err(err).Uint("period_id", periodID).Msg("failed to scan leaderboard cache")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("period_id", periodID).Msg("failed to invalidate leaderboard cache")
	}
}

func (s *statsService) batch(ctx context.Context, ids []uint, periodID *uint, resolved bool) (AggregateMap, AggregateMap) {
	if !resolved || periodID == nil {
		return zeroMap(ids), zeroMap(ids)
	}

	var (
		wg         sync.WaitGroup
		points     AggregateMap
		experience AggregateMap
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		points = s.balances.CalculateMultipleUserPoints(ctx, ids, periodID)
	}()
	go func() {
		defer wg.Done()
		experience = s.balances.CalculateMultipleUserExperience(ctx, ids, periodID)
	}()
	wg.Wait()

	return points, experience
}

func (s *statsService) resolvePeriod(ctx context.Context, periodID *uint) (*uint, error) {
	if periodID != nil {
		id := *periodID
		return &id, nil
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

func (s *statsService) readLeaderboard(ctx context.Context, key string) (dto.LeaderboardResponse, bool) {
	if s.cache == nil {
		return dto.LeaderboardResponse{}, false
	}

	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			observability.LeaderboardCacheLookups().WithLabelValues("miss").Inc()
		} else {
			observability.LeaderboardCacheLookups().WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Msg("failed to read leaderboard cache")
		}
		return dto.LeaderboardResponse{}, false
	}

	var response dto.LeaderboardResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		observability.LeaderboardCacheLookups().WithLabelValues("error").Inc()
		return dto.LeaderboardResponse{}, false
	}

	observability.LeaderboardCacheLookups().WithLabelValues("hit").Inc()
	response.CacheHit = true
	return response, true
}

func (s *statsService) storeLeaderboard(ctx context.Context, key string, response dto.LeaderboardResponse) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store leaderboard cache")
	}
}

func leaderboardKey(periodID uint, limit int) string {
	return fmt.Sprintf("leaderboard:period:%d:%d", periodID, limit)
}
