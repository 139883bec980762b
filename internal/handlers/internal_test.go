package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clearcart/api/internal/services"
)

type stubMaintenanceService struct {
	sweepReservationsFn func(ctx context.Context, now time.Time) (services.SweepResult, error)
	sweepCartsFn        func(ctx context.Context, now time.Time) (services.SweepResult, error)
}

var _ services.MaintenanceService = (*stubMaintenanceService)(nil)

func (s *stubMaintenanceService) SweepReservations(ctx context.Context, now time.Time) (services.SweepResult, error) {
	if s.sweepReservationsFn == nil {
		return services.SweepResult{}, nil
	}
	return s.sweepReservationsFn(ctx, now)
}

func (s *stubMaintenanceService) SweepCarts(ctx context.Context, now time.Time) (services.SweepResult, error) {
	if s.sweepCartsFn == nil {
		return services.SweepResult{}, nil
	}
	return s.sweepCartsFn(ctx, now)
}

func (s *stubMaintenanceService) Run(context.Context) error { return nil }

func TestSweepReservationsReturnsCounts(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotNow time.Time
	maintenance := &stubMaintenanceService{
		sweepReservationsFn: func(_ context.Context, now time.Time) (services.SweepResult, error) {
			gotNow = now
			return services.SweepResult{Scanned: 17, Released: 4}, nil
		},
	}
	handlers := NewInternalHandlers(maintenance, func() time.Time { return fixed })
	r := chi.NewRouter()
	r.Route("/internal", handlers.Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/sweep-reservations", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !gotNow.Equal(fixed) {
		t.Fatalf("expected sweep at %v, got %v", fixed, gotNow)
	}

	var body sweepResultResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Scanned != 17 || body.Released != 4 {
		t.Fatalf("unexpected counts: %+v", body)
	}
	if body.RanAt == "" {
		t.Fatal("expected ran_at timestamp")
	}
}

func TestSweepCartsMapsUnavailable(t *testing.T) {
	maintenance := &stubMaintenanceService{
		sweepCartsFn: func(context.Context, time.Time) (services.SweepResult, error) {
			return services.SweepResult{}, services.ErrMaintenanceUnavailable
		},
	}
	handlers := NewInternalHandlers(maintenance, nil)
	r := chi.NewRouter()
	r.Route("/internal", handlers.Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/sweep-carts", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "maintenance_unavailable" {
		t.Fatalf("expected maintenance_unavailable, got %v", body["error"])
	}
}
