package dto

// UserStatsResponse joins a user's identity with ledger-derived balances for one period.
type UserStatsResponse struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	TutorID    *uint  `json:"tutor_id"`
	PeriodID   *uint  `json:"period_id"`
	Points     int64  `json:"points"`
	Experience int64  `json:"experience"`
	Degraded   bool   `json:"degraded"`
}

// BatchStatsRequest asks for balances of several users at once.
type BatchStatsRequest struct {
	UserIDs  []uint `json:"user_ids" validate:"required,min=1,max=500,dive,required"`
	PeriodID *uint  `json:"period_id"`
}

// UserBalance is one entry of a batch stats response.
type UserBalance struct {
	UserID     uint  `json:"user_id"`
	Points     int64 `json:"points"`
	Experience int64 `json:"experience"`
}

// BatchStatsResponse lists one balance per requested user.
type BatchStatsResponse struct {
	PeriodID *uint         `json:"period_id"`
	Items    []UserBalance `json:"items"`
	Degraded bool          `json:"degraded"`
}

// LeaderboardEntry is a ranked learner.
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	UserID     uint   `json:"user_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Points     int64  `json:"points"`
	Experience int64  `json:"experience"`
}

// LeaderboardResponse ranks learners for one period.
type LeaderboardResponse struct {
	PeriodID *uint              `json:"period_id"`
	Entries  []LeaderboardEntry `json:"entries"`
	Degraded bool               `json:"degraded"`
	CacheHit bool               `json:"cache_hit"`
}
