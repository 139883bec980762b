package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/clearcart/api/internal/domain"
	"github.com/clearcart/api/internal/repositories"
)

const (
	defaultSweepBatchSize = 200
	defaultSweepInterval  = time.Minute
)

// ErrMaintenanceUnavailable indicates the backing store rejected a sweep pass.
var ErrMaintenanceUnavailable = errors.New("maintenance: backend unavailable")

// MaintenanceServiceDeps enumerates collaborators required to construct the service.
type MaintenanceServiceDeps struct {
	Reservations repositories.ReservationRepository
	Carts        repositories.CartRepository
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
	BatchSize    int
	Interval     time.Duration
}

type maintenanceService struct {
	reservations repositories.ReservationRepository
	carts        repositories.CartRepository
	clock        func() time.Time
	logger       func(context.Context, string, map[string]any)
	batchSize    int
	interval     time.Duration
}

// NewMaintenanceService wires dependencies into a MaintenanceService implementation.
func NewMaintenanceService(deps MaintenanceServiceDeps) (MaintenanceService, error) {
	if deps.Reservations == nil {
		return nil, errors.New("maintenance service: reservation repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("maintenance service: cart repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	batchSize := deps.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &maintenanceService{
		reservations: deps.Reservations,
		carts:        deps.Carts,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		batchSize: batchSize,
		interval:  interval,
	}, nil
}

// SweepReservations releases every active reservation whose expiry has passed.
// Rows already released by a concurrent sweep are skipped by the repository,
// so overlapping passes are safe.
func (s *maintenanceService) SweepReservations(ctx context.Context, now time.Time) (SweepResult, error) {
	now = now.UTC()
	result := SweepResult{}

	for {
		expired, err := s.reservations.ListExpiredActive(ctx, now, s.batchSize)
		if err != nil {
			return result, s.translateRepoError(err)
		}
		if len(expired) == 0 {
			break
		}
		result.Scanned += len(expired)

		ids := make([]string, 0, len(expired))
		for _, res := range expired {
			ids = append(ids, res.ID)
		}
		if err := s.reservations.Release(ctx, ids, now); err != nil {
			return result, s.translateRepoError(err)
		}
		result.Released += len(ids)

		if len(expired) < s.batchSize {
			break
		}
	}

	if result.Released > 0 {
		s.logger(ctx, "reservation_sweep_completed", map[string]any{
			"scanned":  result.Scanned,
			"released": result.Released,
		})
	}
	return result, nil
}

// SweepCarts marks active anonymous carts past their expiry as expired.
func (s *maintenanceService) SweepCarts(ctx context.Context, now time.Time) (SweepResult, error) {
	now = now.UTC()
	result := SweepResult{}

	for {
		expired, err := s.carts.ListExpiredActive(ctx, now, s.batchSize)
		if err != nil {
			return result, s.translateRepoError(err)
		}
		if len(expired) == 0 {
			break
		}
		result.Scanned += len(expired)

		for _, cart := range expired {
			cart.Status = domain.CartStatusExpired
			cart.UpdatedAt = now
			if _, err := s.carts.Update(ctx, cart); err != nil {
				if isRepoNotFound(err) || isRepoConflict(err) {
					// Lost the race to another sweep or a late customer write.
					continue
				}
				return result, s.translateRepoError(err)
			}
			result.Released++
		}

		if len(expired) < s.batchSize {
			break
		}
	}

	if result.Released > 0 {
		s.logger(ctx, "cart_sweep_completed", map[string]any{
			"scanned": result.Scanned,
			"expired": result.Released,
		})
	}
	return result, nil
}

// Run executes both sweeps on a fixed interval until the context is cancelled.
func (s *maintenanceService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := s.clock()
			if _, err := s.SweepReservations(ctx, now); err != nil {
				s.logger(ctx, "reservation_sweep_failed", map[string]any{"error": err.Error()})
			}
			if _, err := s.SweepCarts(ctx, now); err != nil {
				s.logger(ctx, "cart_sweep_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

func (s *maintenanceService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrMaintenanceUnavailable, err)
	}
	return err
}
