package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clearcart/api/internal/platform/httpx"
)

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 60 * time.Second
)

// RouteRegistrar registers a group of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	cart       RouteRegistrar
	savedItems RouteRegistrar
	orders     RouteRegistrar
	internal   RouteRegistrar

	internalMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers behind /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithCartRoutes configures the registrar for cart endpoints.
func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart = reg
	}
}

// WithSavedItemRoutes configures the registrar for saved item endpoints.
func WithSavedItemRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.savedItems = reg
	}
}

// WithOrderRoutes configures the registrar for order endpoints.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = reg
	}
}

// WithInternalRoutes configures the registrar for internal service endpoints.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.internal = reg
	}
}

// WithInternalMiddlewares adds middleware applied only to the /internal group.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}

// NewRouter assembles the chi router: health endpoints at the root, every
// API group under the versioned prefix. Groups without a registrar answer
// 501 so partially wired deployments fail loudly instead of 404ing.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w,
			httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w,
			httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	groups := []struct {
		path      string
		name      string
		registrar RouteRegistrar
		mw        []func(http.Handler) http.Handler
	}{
		{path: "/cart", name: "cart", registrar: cfg.cart},
		{path: "/saved-items", name: "savedItems", registrar: cfg.savedItems},
		{path: "/orders", name: "orders", registrar: cfg.orders},
		{path: "/internal", name: "internal", registrar: cfg.internal, mw: cfg.internalMiddlewares},
	}

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, group := range groups {
			group := group
			api.Route(group.path, func(gr chi.Router) {
				for _, mw := range group.mw {
					if mw != nil {
						gr.Use(mw)
					}
				}
				if group.registrar != nil {
					group.registrar(gr)
					return
				}
				stub := notImplementedHandler(group.name)
				gr.HandleFunc("/*", stub)
				gr.HandleFunc("/", stub)
				gr.NotFound(stub)
				gr.MethodNotAllowed(stub)
			})
		}
	})

	return r
}

func notImplementedHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w,
			httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
}
