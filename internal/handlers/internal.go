package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clearcart/api/internal/platform/httpx"
	"github.com/clearcart/api/internal/services"
)

// InternalHandlers exposes operational endpoints for schedulers and
// operators. The router applies service-to-service auth to this group.
type InternalHandlers struct {
	maintenance services.MaintenanceService
	clock       func() time.Time
}

func NewInternalHandlers(maintenance services.MaintenanceService, clock func() time.Time) *InternalHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &InternalHandlers{
		maintenance: maintenance,
		clock:       clock,
	}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/sweep-reservations", h.sweepReservations)
	r.Post("/maintenance/sweep-carts", h.sweepCarts)
}

func (h *InternalHandlers) sweepReservations(w http.ResponseWriter, r *http.Request) {
	h.runSweep(w, r, func(ctx context.Context, now time.Time) (services.SweepResult, error) {
		return h.maintenance.SweepReservations(ctx, now)
	})
}

func (h *InternalHandlers) sweepCarts(w http.ResponseWriter, r *http.Request) {
	h.runSweep(w, r, func(ctx context.Context, now time.Time) (services.SweepResult, error) {
		return h.maintenance.SweepCarts(ctx, now)
	})
}

func (h *InternalHandlers) runSweep(w http.ResponseWriter, r *http.Request, sweep func(context.Context, time.Time) (services.SweepResult, error)) {
	ctx := r.Context()
	if h.maintenance == nil {
		httpx.WriteError(ctx, w, httpx.NewError("maintenance_unavailable", "maintenance service is unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := sweep(ctx, h.clock().UTC())
	if err != nil {
		if errors.Is(err, services.ErrMaintenanceUnavailable) {
			httpx.WriteError(ctx, w, httpx.NewError("maintenance_unavailable", "maintenance service is unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("maintenance_error", "sweep failed", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, sweepResultResponse{
		Scanned:  result.Scanned,
		Released: result.Released,
		RanAt:    formatTime(h.clock().UTC()),
	})
}

type sweepResultResponse struct {
	Scanned  int    `json:"scanned"`
	Released int    `json:"released"`
	RanAt    string `json:"ran_at"`
}
