package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/clearcart/api/internal/domain"
)

var sweepTestNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newMaintenanceServiceForTest(t *testing.T, deps MaintenanceServiceDeps) MaintenanceService {
	t.Helper()
	if deps.Reservations == nil {
		deps.Reservations = &stubReservationRepository{}
	}
	if deps.Carts == nil {
		deps.Carts = &stubCartRepository{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock(sweepTestNow)
	}
	svc, err := NewMaintenanceService(deps)
	if err != nil {
		t.Fatalf("NewMaintenanceService: %v", err)
	}
	return svc
}

func expiredReservation(id string) domain.InventoryReservation {
	return domain.InventoryReservation{
		ID:        id,
		ProductID: "prod-1",
		Quantity:  1,
		Active:    true,
		ExpiresAt: sweepTestNow.Add(-time.Minute),
	}
}

func TestSweepReservationsReleasesInBatches(t *testing.T) {
	batches := [][]domain.InventoryReservation{
		{expiredReservation("res-1"), expiredReservation("res-2")},
		{expiredReservation("res-3")},
	}
	calls := 0
	var released [][]string
	reservations := &stubReservationRepository{
		listExpiredActiveFn: func(ctx context.Context, now time.Time, limit int) ([]domain.InventoryReservation, error) {
			if limit != 2 {
				t.Fatalf("limit = %d, want batch size", limit)
			}
			if calls >= len(batches) {
				return nil, nil
			}
			batch := batches[calls]
			calls++
			return batch, nil
		},
		releaseFn: func(ctx context.Context, ids []string, releasedAt time.Time) error {
			released = append(released, ids)
			return nil
		},
	}
	svc := newMaintenanceServiceForTest(t, MaintenanceServiceDeps{Reservations: reservations, BatchSize: 2})

	result, err := svc.SweepReservations(context.Background(), sweepTestNow)
	if err != nil {
		t.Fatalf("SweepReservations: %v", err)
	}
	if result.Scanned != 3 || result.Released != 3 {
		t.Fatalf("result = %+v", result)
	}
	if len(released) != 2 || len(released[0]) != 2 || released[1][0] != "res-3" {
		t.Fatalf("released = %v", released)
	}
}

func TestSweepReservationsNothingExpired(t *testing.T) {
	reservations := &stubReservationRepository{
		releaseFn: func(ctx context.Context, ids []string, releasedAt time.Time) error {
			t.Fatal("nothing should be released")
			return nil
		},
	}
	svc := newMaintenanceServiceForTest(t, MaintenanceServiceDeps{Reservations: reservations})

	result, err := svc.SweepReservations(context.Background(), sweepTestNow)
	if err != nil {
		t.Fatalf("SweepReservations: %v", err)
	}
	if result.Scanned != 0 || result.Released != 0 {
		t.Fatalf("result = %+v", result)
	}
}

func TestSweepCartsMarksExpiredAndSkipsRaces(t *testing.T) {
	expiry := sweepTestNow.Add(-time.Hour)
	stale := func(id string) domain.Cart {
		return domain.Cart{
			ID:           id,
			SessionToken: "sess_" + id,
			Status:       domain.CartStatusActive,
			ExpiresAt:    &expiry,
		}
	}
	served := false
	var updates []domain.Cart
	carts := &stubCartRepository{
		listExpiredActiveFn: func(ctx context.Context, now time.Time, limit int) ([]domain.Cart, error) {
			if served {
				return nil, nil
			}
			served = true
			return []domain.Cart{stale("cart-1"), stale("cart-2")}, nil
		},
		updateFn: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			updates = append(updates, cart)
			if cart.ID == "cart-2" {
				return domain.Cart{}, errStubConflict
			}
			return cart, nil
		},
	}
	svc := newMaintenanceServiceForTest(t, MaintenanceServiceDeps{Carts: carts})

	result, err := svc.SweepCarts(context.Background(), sweepTestNow)
	if err != nil {
		t.Fatalf("SweepCarts: %v", err)
	}
	if result.Scanned != 2 || result.Released != 1 {
		t.Fatalf("result = %+v", result)
	}
	if len(updates) != 2 || updates[0].Status != domain.CartStatusExpired {
		t.Fatalf("updates = %+v", updates)
	}
	if !updates[0].UpdatedAt.Equal(sweepTestNow) {
		t.Fatalf("updatedAt = %v", updates[0].UpdatedAt)
	}
}

func TestSweepCartsTranslatesBackendFailure(t *testing.T) {
	carts := &stubCartRepository{
		listExpiredActiveFn: func(ctx context.Context, now time.Time, limit int) ([]domain.Cart, error) {
			return nil, errStubUnavailable
		},
	}
	svc := newMaintenanceServiceForTest(t, MaintenanceServiceDeps{Carts: carts})

	_, err := svc.SweepCarts(context.Background(), sweepTestNow)
	if !errors.Is(err, ErrMaintenanceUnavailable) {
		t.Fatalf("err = %v, want ErrMaintenanceUnavailable", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	svc := newMaintenanceServiceForTest(t, MaintenanceServiceDeps{Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
