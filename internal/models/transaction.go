package models

import (
	"time"

	"gorm.io/datatypes"
)

// PointsTransactionType distinguishes earned from spent points.
type PointsTransactionType string

const (
	PointsTransactionAward  PointsTransactionType = "AWARD"
	PointsTransactionRedeem PointsTransactionType = "REDEEM"
)

// TransactionKind identifies which log a ledger entry belongs to.
type TransactionKind string

const (
	TransactionKindPoints     TransactionKind = "points"
	TransactionKindExperience TransactionKind = "experience"
)

// ParseTransactionKind validates a kind received from a client.
func ParseTransactionKind(value string) (TransactionKind, bool) {
	switch TransactionKind(value) {
	case TransactionKindPoints:
		return TransactionKindPoints, true
	case TransactionKindExperience:
		return TransactionKindExperience, true
	default:
		return "", false
	}
}

// PointsTransaction is an append-only points ledger entry. Points is always a positive
// magnitude; Type carries the sign.
type PointsTransaction struct {
	ID         uint                  `gorm:"primaryKey" json:"id"`
	Points     int64                 `gorm:"not null" json:"points"`
	Type       PointsTransactionType `gorm:"size:16;not null" json:"type"`
	Reason     string                `gorm:"type:text" json:"reason"`
	StudentID  uint                  `gorm:"not null;index:idx_points_period_student,priority:2" json:"student_id"`
	TutorID    uint                  `gorm:"not null" json:"tutor_id"`
	PeriodID   uint                  `gorm:"not null;index:idx_points_period_student,priority:1" json:"period_id"`
	RolledBack bool                  `gorm:"not null;default:false" json:"rolled_back"`
	CreatedAt  time.Time             `json:"created_at"`
}

// ExperienceTransaction is an append-only experience ledger entry with a signed amount.
type ExperienceTransaction struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Amount     int64     `gorm:"not null" json:"amount"`
	Reason     string    `gorm:"type:text" json:"reason"`
	StudentID  uint      `gorm:"not null;index:idx_experience_period_student,priority:2" json:"student_id"`
	TutorID    uint      `gorm:"not null" json:"tutor_id"`
	PeriodID   uint      `gorm:"not null;index:idx_experience_period_student,priority:1" json:"period_id"`
	RolledBack bool      `gorm:"not null;default:false" json:"rolled_back"`
	CreatedAt  time.Time `json:"created_at"`
}

// TransactionRollback records who flipped a ledger entry to rolled back and why.
type TransactionRollback struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	TransactionKind TransactionKind   `gorm:"size:16;not null;index:idx_rollback_target,priority:1" json:"transaction_kind"`
	TransactionID   uint              `gorm:"not null;index:idx_rollback_target,priority:2" json:"transaction_id"`
	RolledBackBy    uint              `gorm:"not null" json:"rolled_back_by"`
	Reason          string            `gorm:"type:text" json:"reason"`
	Metadata        datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
}
