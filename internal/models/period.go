package models

import "time"

// PeriodStatus is the lifecycle state of a period.
type PeriodStatus string

const (
	PeriodStatusPlanned   PeriodStatus = "PLANNED"
	PeriodStatusActive    PeriodStatus = "ACTIVE"
	PeriodStatusCompleted PeriodStatus = "COMPLETED"
)

// Period is an administrative window (e.g. a semester) that scopes every ledger entry.
type Period struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	Name       string       `gorm:"size:255;not null" json:"name"`
	StartDate  time.Time    `gorm:"not null" json:"start_date"`
	EndDate    *time.Time   `json:"end_date"`
	Status     PeriodStatus `gorm:"size:16;not null;default:PLANNED;index" json:"status"`
	TotalWeeks int          `gorm:"not null;default:0" json:"total_weeks"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (p Period) CanTransitionTo(next PeriodStatus) bool {
	switch p.Status {
	case PeriodStatusPlanned:
		return next == PeriodStatusActive
	case PeriodStatusActive:
		return next == PeriodStatusCompleted
	default:
		return false
	}
}
