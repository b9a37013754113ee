package dto

import (
	"time"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// PeriodCreateRequest is the payload for opening a new PLANNED period.
type PeriodCreateRequest struct {
	Name       string     `json:"name" validate:"required,min=2,max=255"`
	StartDate  time.Time  `json:"start_date" validate:"required"`
	EndDate    *time.Time `json:"end_date"`
	TotalWeeks int        `json:"total_weeks" validate:"gte=0,lte=104"`
}

// PeriodListRequest filters period listings.
type PeriodListRequest struct {
	Status   string `validate:"omitempty,oneof=PLANNED ACTIVE COMPLETED"`
	Page     int
	PageSize int
}

// PeriodResponse serializes a period.
type PeriodResponse struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date"`
	Status     string     `json:"status"`
	TotalWeeks int        `json:"total_weeks"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// PeriodListResponse wraps a page of periods.
type PeriodListResponse struct {
	Items      []PeriodResponse `json:"items"`
	Pagination PaginationMeta   `json:"pagination"`
}

// NewPeriodResponse converts a model into a period DTO.
func NewPeriodResponse(period models.Period) PeriodResponse {
	return PeriodResponse{
		ID:         period.ID,
		Name:       period.Name,
		StartDate:  period.StartDate,
		EndDate:    period.EndDate,
		Status:     string(period.Status),
		TotalWeeks: period.TotalWeeks,
		CreatedAt:  period.CreatedAt,
		UpdatedAt:  period.UpdatedAt,
	}
}
