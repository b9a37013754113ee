package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
	filters []repository.ActivityLogFilter
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	m.filters = append(m.filters, filter)
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksEmail(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    1,
		ActorRole:  "admin",
		Action:     "Points.Awarded",
		EntityType: "points_transaction",
		EntityID:   ptrUint(5),
		Metadata: map[string]interface{}{
			"student_email": "student@example.com",
			"points":        10,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Metadata["student_email"])
	require.Equal(t, 10, entry.Metadata["points"])
	require.Equal(t, "ADMIN", entry.ActorRole)
	require.Equal(t, models.ActionPointsAwarded, entry.Action)
}

func TestActivityServiceRecordRequiresAction(t *testing.T) {
	svc := NewActivityService(&memoryActivityRepo{}, testLogger())

	_, err := svc.Record(context.Background(), ActivityEntry{EntityType: "period"})
	require.Error(t, err)
}

func TestActivityServiceListBuildsFilterAndPagination(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	for i := 0; i < 3; i++ {
		_, err := svc.Record(context.Background(), ActivityEntry{ActorID: 2, Action: models.ActionPeriodCreated, EntityType: "period"})
		require.NoError(t, err)
	}

	result, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 2, ActorID: 2, EntityID: 9})
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	require.Equal(t, 2, result.Pagination.TotalPages)
	require.Len(t, repo.filters, 1)
	require.Equal(t, uint(2), *repo.filters[0].ActorID)
	require.Equal(t, uint(9), *repo.filters[0].EntityID)
	require.Equal(t, "SYSTEM", result.Items[0].ActorRole)
}
