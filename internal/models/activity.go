package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions written by the ledger and period services.
const (
	ActionPointsAwarded      = "points.awarded"
	ActionPointsRedeemed     = "points.redeemed"
	ActionExperienceRecorded = "experience.recorded"
	ActionTransactionRolled  = "transaction.rolled_back"
	ActionPeriodCreated      = "period.created"
	ActionPeriodActivated    = "period.activated"
	ActionPeriodCompleted    = "period.completed"
)

// ActivityLog is the audit trail of ledger writes and period transitions.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   *uint             `json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}
