package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/clearcart/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput indicates malformed reservation parameters.
	ErrInventoryInvalidInput = errors.New("inventory service: invalid input")
	// ErrInventoryInsufficientStock indicates the requested quantity exceeds availability.
	ErrInventoryInsufficientStock = errors.New("inventory service: insufficient stock")
	// ErrInventoryReservationNotFound indicates the reservation does not exist.
	ErrInventoryReservationNotFound = errors.New("inventory service: reservation not found")
	// ErrInventoryUnavailable indicates the persistence backend failed transiently.
	ErrInventoryUnavailable = errors.New("inventory service: unavailable")
)

const defaultReservationTTL = 30 * time.Minute

// InventoryServiceDeps wires reservation persistence and the catalog read model.
type InventoryServiceDeps struct {
	Reservations repositories.ReservationRepository
	Catalog      repositories.CatalogRepository
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(context.Context, string, map[string]any)
	DefaultTTL   time.Duration
}

type inventoryService struct {
	reservations repositories.ReservationRepository
	catalog      repositories.CatalogRepository
	now          func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
	ttl          time.Duration
}

// NewInventoryService constructs an InventoryService enforcing dependency validation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Reservations == nil {
		return nil, errors.New("inventory service: reservation repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("inventory service: catalog repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "res_" + ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.DefaultTTL
	if ttl <= 0 {
		ttl = defaultReservationTTL
	}

	return &inventoryService{
		reservations: deps.Reservations,
		catalog:      deps.Catalog,
		now:          func() time.Time { return clock().UTC() },
		newID:        idGen,
		logger:       logger,
		ttl:          ttl,
	}, nil
}

// Reserve creates one advisory hold per line. All lines are validated against
// current availability; when a later line fails, holds already taken in this
// call are released before the error is returned.
func (s *inventoryService) Reserve(ctx context.Context, cmd ReserveStockCommand) ([]InventoryReservation, error) {
	lines := normaliseReservationLines(cmd.Lines)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInventoryInvalidInput)
	}

	ttl := cmd.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	expiry := now.Add(ttl)

	created := make([]InventoryReservation, 0, len(lines))
	for _, line := range lines {
		available, err := s.Available(ctx, line.ProductID, line.VariantID)
		if err != nil {
			s.releaseCreated(ctx, created, "reserve_failed")
			return nil, err
		}
		if line.Quantity > available {
			s.releaseCreated(ctx, created, "reserve_insufficient_stock")
			return nil, fmt.Errorf("%w: product %s requested %d, available %d",
				ErrInventoryInsufficientStock, line.ProductID, line.Quantity, available)
		}

		reservation := InventoryReservation{
			ID:        s.newID(),
			ProductID: line.ProductID,
			VariantID: cloneStringPtr(line.VariantID),
			Quantity:  line.Quantity,
			Active:    true,
			ExpiresAt: expiry,
			CreatedAt: now,
		}
		saved, err := s.reservations.Insert(ctx, reservation)
		if err != nil {
			s.releaseCreated(ctx, created, "reserve_failed")
			return nil, s.translateRepoError(err)
		}
		created = append(created, saved)
	}

	s.logger(ctx, "inventory_reserved", map[string]any{
		"count":     len(created),
		"expiresAt": expiry,
	})
	return created, nil
}

// Release deactivates the given reservations. Releasing an already inactive
// reservation is a no-op.
func (s *inventoryService) Release(ctx context.Context, cmd ReleaseReservationsCommand) error {
	ids := trimIDs(cmd.ReservationIDs)
	if len(ids) == 0 {
		return nil
	}
	if err := s.reservations.Release(ctx, ids, s.now()); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "inventory_released", map[string]any{
		"count":  len(ids),
		"reason": cmd.Reason,
	})
	return nil
}

// ReleaseByOrder releases every active hold bound to the order, used on
// cancellation.
func (s *inventoryService) ReleaseByOrder(ctx context.Context, orderID string, reason string) error {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}

	active, err := s.reservations.ListActiveByOrder(ctx, id)
	if err != nil {
		return s.translateRepoError(err)
	}
	if len(active) == 0 {
		return nil
	}
	ids := make([]string, 0, len(active))
	for _, r := range active {
		ids = append(ids, r.ID)
	}
	return s.Release(ctx, ReleaseReservationsCommand{ReservationIDs: ids, Reason: reason})
}

// BindToOrder attaches reservations created before the order existed to the
// persisted order id.
func (s *inventoryService) BindToOrder(ctx context.Context, reservationIDs []string, orderID string) error {
	ids := trimIDs(reservationIDs)
	if len(ids) == 0 {
		return nil
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}
	if err := s.reservations.BindOrder(ctx, ids, id); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// Available computes on-hand stock minus active holds. Holds are advisory:
// catalog quantities are not decremented at reservation time.
func (s *inventoryService) Available(ctx context.Context, productID string, variantID *string) (int, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return 0, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}

	var onHand int
	if variantID != nil {
		variant, err := s.catalog.GetVariant(ctx, pid, *variantID)
		if err != nil {
			return 0, s.translateRepoError(err)
		}
		onHand = variant.InventoryQuantity
	} else {
		product, err := s.catalog.GetProduct(ctx, pid)
		if err != nil {
			return 0, s.translateRepoError(err)
		}
		onHand = product.InventoryQuantity
	}

	reserved, err := s.reservations.SumActiveQuantity(ctx, pid, variantID, s.now())
	if err != nil {
		return 0, s.translateRepoError(err)
	}

	available := onHand - reserved
	if available < 0 {
		available = 0
	}
	return available, nil
}

var _ StockAvailability = (*inventoryService)(nil)

func (s *inventoryService) releaseCreated(ctx context.Context, created []InventoryReservation, reason string) {
	if len(created) == 0 {
		return
	}
	ids := make([]string, 0, len(created))
	for _, r := range created {
		ids = append(ids, r.ID)
	}
	if err := s.reservations.Release(ctx, ids, s.now()); err != nil {
		s.logger(ctx, "inventory_release_failed", map[string]any{
			"reservationIds": ids,
			"reason":         reason,
			"error":          err.Error(),
		})
	}
}

func (s *inventoryService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: %s", ErrInventoryInsufficientStock, invErr.Message)
		case repositories.InventoryErrorReservationNotFound, repositories.InventoryErrorStockNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryReservationNotFound, invErr.Message)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInventoryReservationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrInventoryUnavailable, err)
		}
	}
	return err
}

// normaliseReservationLines trims ids, drops empty lines, and folds duplicate
// (product, variant) pairs into a single aggregated line.
func normaliseReservationLines(lines []ReservationLine) []ReservationLine {
	type key struct {
		product string
		variant string
	}
	index := make(map[key]int, len(lines))
	out := make([]ReservationLine, 0, len(lines))
	for _, line := range lines {
		pid := strings.TrimSpace(line.ProductID)
		if pid == "" || line.Quantity <= 0 {
			continue
		}
		k := key{product: pid}
		if line.VariantID != nil {
			k.variant = strings.TrimSpace(*line.VariantID)
		}
		if i, ok := index[k]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[k] = len(out)
		out = append(out, ReservationLine{
			ProductID: pid,
			VariantID: cloneStringPtr(line.VariantID),
			Quantity:  line.Quantity,
		})
	}
	return out
}

func trimIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
