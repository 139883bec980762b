package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/clearcart/api/internal/platform/firestore"
	"github.com/clearcart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind a single handle
// sharing one provider and transaction scope.
type Registry struct {
	provider *pfirestore.Provider

	carts        *CartRepository
	cartEvents   *CartEventRepository
	savedItems   *SavedItemRepository
	orders       *OrderRepository
	reservations *ReservationRepository
	catalog      *CatalogRepository
	counters     *CounterRepository
	health       repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires every repository against the shared provider. The health
// repository is supplied by the caller since its probe set depends on which
// downstreams the process actually talks to.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	if health == nil {
		return nil, errors.New("firestore registry: health repository is required")
	}

	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	cartEvents, err := NewCartEventRepository(provider)
	if err != nil {
		return nil, err
	}
	savedItems, err := NewSavedItemRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	reservations, err := NewReservationRepository(provider)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:     provider,
		carts:        carts,
		cartEvents:   cartEvents,
		savedItems:   savedItems,
		orders:       orders,
		reservations: reservations,
		catalog:      catalog,
		counters:     counters,
		health:       health,
	}, nil
}

func (r *Registry) Carts() repositories.CartRepository               { return r.carts }
func (r *Registry) CartEvents() repositories.CartEventRepository     { return r.cartEvents }
func (r *Registry) SavedItems() repositories.SavedItemRepository     { return r.savedItems }
func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Reservations() repositories.ReservationRepository { return r.reservations }
func (r *Registry) Catalog() repositories.CatalogRepository          { return r.catalog }
func (r *Registry) Counters() repositories.CounterRepository         { return r.counters }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }

// RunInTx executes fn inside a Firestore transaction. Repository calls made
// with the context passed to fn join the transaction; Firestore requires all
// transactional reads to happen before the first write.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("firestore registry: transaction func is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(withTx(ctx, tx))
	})
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
