package dto

import (
	"time"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// AwardPointsRequest grants points to a student in the active period. ExperienceAmount,
// when set, is recorded as a separate positive experience entry.
type AwardPointsRequest struct {
	StudentID        uint   `json:"student_id" validate:"required"`
	Points           int64  `json:"points" validate:"required,gt=0,lte=100000"`
	Reason           string `json:"reason" validate:"required,min=2,max=500"`
	ExperienceAmount *int64 `json:"experience_amount" validate:"omitempty,gt=0,lte=100000"`
}

// RedeemPointsRequest spends points from a student's balance in the active period.
type RedeemPointsRequest struct {
	StudentID uint   `json:"student_id" validate:"required"`
	Points    int64  `json:"points" validate:"required,gt=0,lte=100000"`
	Reason    string `json:"reason" validate:"required,min=2,max=500"`
}

// ExperienceRequest records an experience gain in the active period. Corrections go through
// rollback, never through negative amounts.
type ExperienceRequest struct {
	StudentID uint   `json:"student_id" validate:"required"`
	Amount    int64  `json:"amount" validate:"required,gt=0,lte=100000"`
	Reason    string `json:"reason" validate:"required,min=2,max=500"`
}

// RollbackRequest carries the justification for rolling back an entry.
type RollbackRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// TransactionListRequest filters a student's ledger history.
type TransactionListRequest struct {
	Kind              string `validate:"omitempty,oneof=points experience"`
	PeriodID          *uint
	IncludeRolledBack bool
	Page              int
	PageSize          int
}

// PointsTransactionResponse serializes a points ledger entry.
type PointsTransactionResponse struct {
	ID         uint      `json:"id"`
	Kind       string    `json:"kind"`
	Type       string    `json:"type"`
	Points     int64     `json:"points"`
	Reason     string    `json:"reason"`
	StudentID  uint      `json:"student_id"`
	TutorID    uint      `json:"tutor_id"`
	PeriodID   uint      `json:"period_id"`
	RolledBack bool      `json:"rolled_back"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExperienceTransactionResponse serializes an experience ledger entry.
type ExperienceTransactionResponse struct {
	ID         uint      `json:"id"`
	Kind       string    `json:"kind"`
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason"`
	StudentID  uint      `json:"student_id"`
	TutorID    uint      `json:"tutor_id"`
	PeriodID   uint      `json:"period_id"`
	RolledBack bool      `json:"rolled_back"`
	CreatedAt  time.Time `json:"created_at"`
}

// AwardResponse is returned by the award endpoint.
type AwardResponse struct {
	Points     PointsTransactionResponse      `json:"points"`
	Experience *ExperienceTransactionResponse `json:"experience,omitempty"`
}

// RollbackResponse describes a completed rollback.
type RollbackResponse struct {
	ID              uint      `json:"id"`
	TransactionKind string    `json:"transaction_kind"`
	TransactionID   uint      `json:"transaction_id"`
	RolledBackBy    uint      `json:"rolled_back_by"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// PointsHistoryResponse wraps a page of points entries.
type PointsHistoryResponse struct {
	Items      []PointsTransactionResponse `json:"items"`
	Pagination PaginationMeta              `json:"pagination"`
}

// ExperienceHistoryResponse wraps a page of experience entries.
type ExperienceHistoryResponse struct {
	Items      []ExperienceTransactionResponse `json:"items"`
	Pagination PaginationMeta                  `json:"pagination"`
}

// NewPointsTransactionResponse converts a model into a DTO.
func NewPointsTransactionResponse(entry models.PointsTransaction) PointsTransactionResponse {
	return PointsTransactionResponse{
		ID:         entry.ID,
		Kind:       string(models.TransactionKindPoints),
		Type:       string(entry.Type),
		Points:     entry.Points,
		Reason:     entry.Reason,
		StudentID:  entry.StudentID,
		TutorID:    entry.TutorID,
		PeriodID:   entry.PeriodID,
		RolledBack: entry.RolledBack,
		CreatedAt:  entry.CreatedAt,
	}
}

// NewExperienceTransactionResponse converts a model into a DTO.
func NewExperienceTransactionResponse(entry models.ExperienceTransaction) ExperienceTransactionResponse {
	return ExperienceTransactionResponse{
		ID:         entry.ID,
		Kind:       string(models.TransactionKindExperience),
		Amount:     entry.Amount,
		Reason:     entry.Reason,
		StudentID:  entry.StudentID,
		TutorID:    entry.TutorID,
		PeriodID:   entry.PeriodID,
		RolledBack: entry.RolledBack,
		CreatedAt:  entry.CreatedAt,
	}
}

// NewRollbackResponse converts a model into a DTO.
func NewRollbackResponse(record models.TransactionRollback) RollbackResponse {
	return RollbackResponse{
		ID:              record.ID,
		TransactionKind: string(record.TransactionKind),
		TransactionID:   record.TransactionID,
		RolledBackBy:    record.RolledBackBy,
		Reason:          record.Reason,
		CreatedAt:       record.CreatedAt,
	}
}

// TransactionHistoryResponse carries one or both ledgers of a student, depending on the
// requested kind.
type TransactionHistoryResponse struct {
	StudentID  uint                       `json:"student_id"`
	Points     *PointsHistoryResponse     `json:"points,omitempty"`
	Experience *ExperienceHistoryResponse `json:"experience,omitempty"`
}
