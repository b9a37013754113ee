package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/handler"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
)

type stubPeriodService struct {
	active      *models.Period
	activateErr error
	created     int
	lastList    dto.PeriodListRequest
}

func (s *stubPeriodService) GetActivePeriod(context.Context) (*models.Period, error) {
	return s.active, nil
}

func (s *stubPeriodService) RequireActivePeriod(context.Context) (models.Period, error) {
	if s.active == nil {
		return models.Period{}, service.ErrNoActivePeriod
	}
	return *s.active, nil
}

func (s *stubPeriodService) GetPeriodByID(_ context.Context, id uint) (*models.Period, error) {
	if s.active != nil && s.active.ID == id {
		return s.active, nil
	}
	return nil, nil
}

func (s *stubPeriodService) List(_ context.Context, req dto.PeriodListRequest) (dto.PeriodListResponse, error) {
	s.lastList = req
	return dto.PeriodListResponse{
		Items:      []dto.PeriodResponse{},
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, 0),
	}, nil
}

func (s *stubPeriodService) Create(_ context.Context, _ service.Actor, req dto.PeriodCreateRequest) (dto.PeriodResponse, error) {
	s.created++
	return dto.PeriodResponse{ID: 7, Name: req.Name, Status: string(models.PeriodStatusPlanned)}, nil
}

func (s *stubPeriodService) Activate(_ context.Context, _ service.Actor, id uint) (dto.PeriodResponse, error) {
	if s.activateErr != nil {
		return dto.PeriodResponse{}, s.activateErr
	}
	return dto.PeriodResponse{ID: id, Status: string(models.PeriodStatusActive)}, nil
}

func (s *stubPeriodService) Complete(_ context.Context, _ service.Actor, id uint) (dto.PeriodResponse, error) {
	return dto.PeriodResponse{ID: id, Status: string(models.PeriodStatusCompleted)}, nil
}

func periodApp(svc service.PeriodService, role string) *fiber.App {
	return newAuthedApp("/api/v2/periods", 1, role, func(router fiber.Router) {
		handler.NewPeriodHandler(svc, zerolog.Nop()).Register(router)
	})
}

func TestPeriodHandlerActive(t *testing.T) {
	svc := &stubPeriodService{}
	app := periodApp(svc, "STUDENT")

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v2/periods/active", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	svc.active = &models.Period{ID: 3, Name: "Term 1", Status: models.PeriodStatusActive, StartDate: time.Now()}
	resp, body := doRequest(t, app, http.MethodGet, "/api/v2/periods/active", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, string(body.Data), `"Term 1"`)

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v2/periods/3", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v2/periods/4", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestPeriodHandlerListPagination(t *testing.T) {
	svc := &stubPeriodService{}
	app := periodApp(svc, "TUTOR")

	resp, body := doRequest(t, app, http.MethodGet, "/api/v2/periods?status=COMPLETED&page=2&page_size=500", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "COMPLETED", svc.lastList.Status)
	require.Equal(t, 2, svc.lastList.Page)
	require.Equal(t, 100, svc.lastList.PageSize)
	require.EqualValues(t, 2, body.Meta["page"])
}

func TestPeriodHandlerLifecycleRequiresAdmin(t *testing.T) {
	svc := &stubPeriodService{}
	payload := map[string]interface{}{"name": "Term 2", "start_date": time.Now().UTC().Format(time.RFC3339)}

	resp, _ := doRequest(t, periodApp(svc, "TUTOR"), http.MethodPost, "/api/v2/periods", payload)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Zero(t, svc.created)

	resp, _ = doRequest(t, periodApp(svc, "ADMIN"), http.MethodPost, "/api/v2/periods", payload)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, 1, svc.created)
}

func TestPeriodHandlerActivateConflict(t *testing.T) {
	svc := &stubPeriodService{activateErr: service.ErrInvalidPeriodTransition}
	app := periodApp(svc, "ADMIN")

	resp, body := doRequest(t, app, http.MethodPost, "/api/v2/periods/2/activate", nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, service.ErrInvalidPeriodTransition.Error(), body.Message)

	svc.activateErr = service.ErrPeriodNotFound
	resp, _ = doRequest(t, app, http.MethodPost, "/api/v2/periods/2/activate", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v2/periods/0/activate", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
