package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clearcart/api/internal/platform/config"
	"github.com/clearcart/api/internal/repositories"
	"github.com/clearcart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Pricing       services.PricingEngine
	Cart          services.CartService
	SavedItems    services.SavedItemsService
	Inventory     services.InventoryService
	Counters      services.CounterService
	Orders        services.OrderService
	Notifications services.NotificationDispatch
	Maintenance   services.MaintenanceService
	System        services.SystemService
}

// ContainerDeps carries external collaborators that the container cannot
// construct itself.
type ContainerDeps struct {
	Config    config.Config
	Registry  repositories.Registry
	Publisher services.NotificationPublisher
	Logger    func(ctx context.Context, event string, fields map[string]any)
	Clock     func() time.Time
	Build     services.BuildInfo
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries and stub publishers.
func NewContainer(ctx context.Context, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, deps ContainerDeps) (Services, error) {
	var svc Services

	reg := deps.Registry
	cfg := deps.Config
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger

	pricing, err := services.NewProductPricingEngine(services.ProductPricingEngineDeps{
		Catalog: reg.Catalog(),
		Clock:   clock,
		Logger:  logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		Reservations: reg.Reservations(),
		Catalog:      reg.Catalog(),
		Clock:        clock,
		Logger:       logger,
		DefaultTTL:   cfg.Sweeps.ReservationTTL,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventory

	cart, err := services.NewCartService(services.CartServiceDeps{
		Carts:           reg.Carts(),
		Events:          reg.CartEvents(),
		Catalog:         reg.Catalog(),
		Pricer:          pricing,
		Stock:           inventory,
		Tx:              reg,
		Clock:           clock,
		Logger:          logger,
		DefaultCurrency: cfg.Pricing.DefaultCurrency,
		AnonymousTTL:    cfg.Sessions.CartTTL,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	savedItems, err := services.NewSavedItemsService(services.SavedItemsServiceDeps{
		SavedItems: reg.SavedItems(),
		Catalog:    reg.Catalog(),
		Carts:      cart,
		Clock:      clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build saved items service: %w", err)
	}
	svc.SavedItems = savedItems

	counters, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counters

	if deps.Publisher != nil {
		notifications, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Publisher: deps.Publisher,
			Clock:     clock,
			Logger:    logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification dispatcher: %w", err)
		}
		svc.Notifications = notifications
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:                reg.Orders(),
		Carts:                 reg.Carts(),
		Catalog:               reg.Catalog(),
		Pricer:                pricing,
		Inventory:             inventory,
		Counters:              counters,
		Notifications:         svc.Notifications,
		Tx:                    reg,
		Clock:                 clock,
		Logger:                logger,
		TaxRateBasisPoints:    cfg.Pricing.TaxRateBps,
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		ShippingFee:           cfg.Pricing.ShippingFee,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	maintenance, err := services.NewMaintenanceService(services.MaintenanceServiceDeps{
		Reservations: reg.Reservations(),
		Carts:        reg.Carts(),
		Clock:        clock,
		Logger:       logger,
		BatchSize:    cfg.Sweeps.BatchSize,
		Interval:     cfg.Sweeps.Interval,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build maintenance service: %w", err)
	}
	svc.Maintenance = maintenance

	if healthRepo := reg.Health(); healthRepo != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return svc, nil
}
