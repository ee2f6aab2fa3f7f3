package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/handlers"
	"github.com/petcorner/storefront/internal/platform/config"
	"github.com/petcorner/storefront/internal/platform/geo"
	"github.com/petcorner/storefront/internal/platform/observability"
	"github.com/petcorner/storefront/internal/repositories"
	"github.com/petcorner/storefront/internal/repositories/erp"
	"github.com/petcorner/storefront/internal/repositories/memory"
	"github.com/petcorner/storefront/internal/services"
)

const erpHealthTimeout = 3 * time.Second

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders services.OrderService
}

// Container wires repositories, services, and handlers for runtime use.
type Container struct {
	Config   config.Config
	Logger   *zap.Logger
	ERP      *erp.Client
	Carts    repositories.CartStore
	Health   repositories.HealthRepository
	Services Services

	build handlers.BuildInfo
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	httpClient    *http.Client
	geoHTTPClient *http.Client
	meter         metric.Meter
	build         handlers.BuildInfo
	carts         repositories.CartStore
	locator       services.Locator
}

// WithERPHTTPClient overrides the HTTP client used for ERP calls.
func WithERPHTTPClient(client *http.Client) Option {
	return func(o *containerOptions) {
		o.httpClient = client
	}
}

// WithGeocoderHTTPClient overrides the HTTP client used for address geocoding.
func WithGeocoderHTTPClient(client *http.Client) Option {
	return func(o *containerOptions) {
		o.geoHTTPClient = client
	}
}

// WithMeter sets the meter used for ERP metrics.
func WithMeter(meter metric.Meter) Option {
	return func(o *containerOptions) {
		o.meter = meter
	}
}

// WithBuildInfo records version metadata reported by /healthz.
func WithBuildInfo(info handlers.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = info
	}
}

// WithCartStore replaces the in-memory cart store.
func WithCartStore(store repositories.CartStore) Option {
	return func(o *containerOptions) {
		o.carts = store
	}
}

// WithLocator replaces the configured geocoder. The container still bounds it by the configured timeout.
func WithLocator(locator services.Locator) Option {
	return func(o *containerOptions) {
		o.locator = locator
	}
}

// NewContainer constructs the runtime dependencies from cfg.
func NewContainer(_ context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var options containerOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	var erpHTTP erp.HTTPClient
	if options.httpClient != nil {
		erpHTTP = options.httpClient
	}
	erpClient, err := erp.NewClient(erp.Config{
		BaseURL:            cfg.ERP.BaseURL,
		APIKey:             cfg.ERP.APIKey,
		Timeout:            cfg.ERP.Timeout,
		SendIdempotencyKey: cfg.ERP.SendIdempotencyKey,
		Logger:             logger.Named("erp"),
		Meter:              options.meter,
	}, erpHTTP)
	if err != nil {
		return nil, fmt.Errorf("build erp client: %w", err)
	}

	carts := options.carts
	if carts == nil {
		carts = memory.NewCartStore()
	}

	locator, err := buildLocator(cfg.Geolocation, logger, options)
	if err != nil {
		return nil, err
	}

	var store *domain.Coordinates
	if cfg.Store.HasLocation {
		store = &domain.Coordinates{Latitude: cfg.Store.Latitude, Longitude: cfg.Store.Longitude}
	} else {
		logger.Warn("store location not configured; delivery cost will be reported as unknown")
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        erpClient,
		Catalog:       erpClient,
		Carts:         carts,
		Locator:       locator,
		StoreLocation: store,
		Notifier:      observability.NewLogNotifier(logger.Named("notify")),
		Clock:         time.Now,
		Logger:        observability.ServiceLogger(logger.Named("orders")),
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:    "erp",
		Timeout: erpHealthTimeout,
		Check:   erpClient.Ping,
	}})
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}

	build := options.build
	if build.StartedAt.IsZero() {
		build.StartedAt = time.Now().UTC()
	}

	return &Container{
		Config:   cfg,
		Logger:   logger,
		ERP:      erpClient,
		Carts:    carts,
		Health:   health,
		Services: Services{Orders: orderSvc},
		build:    build,
	}, nil
}

// Router assembles the HTTP surface on top of the container's services.
func (c *Container) Router(middlewares ...func(http.Handler) http.Handler) (chi.Router, error) {
	if c == nil || c.Services.Orders == nil {
		return nil, errors.New("container is not initialised")
	}
	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(c.build),
		handlers.WithHealthRepository(c.Health),
	)
	checkout := handlers.NewCheckoutHandlers(c.Services.Orders)
	cart := handlers.NewCartHandlers(c.Carts, c.Services.Orders)
	orders := handlers.NewOrderHandlers(c.Services.Orders)

	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithRequestTimeout(c.Config.Server.RequestTimeout),
		handlers.WithHealthHandlers(health),
		handlers.WithCheckoutRoutes(checkout.Routes),
		handlers.WithCartRoutes(cart.Routes),
		handlers.WithOrderRoutes(orders.Routes),
	), nil
}

func buildLocator(cfg config.GeolocationConfig, logger *zap.Logger, options containerOptions) (services.Locator, error) {
	if !cfg.Enabled {
		logger.Info("geolocation disabled; delivery cost needs device coordinates")
		return nil, nil
	}
	next := options.locator
	if next == nil {
		var client geo.HTTPClient
		if options.geoHTTPClient != nil {
			client = options.geoHTTPClient
		}
		nominatim, err := geo.NewNominatimLocator(geo.NominatimConfig{
			BaseURL:   cfg.GeocoderURL,
			UserAgent: cfg.UserAgent,
			Logger:    logger.Named("geo"),
		}, client)
		if err != nil {
			return nil, fmt.Errorf("build geocoder: %w", err)
		}
		next = nominatim
	}
	return geo.NewBoundedLocator(next, cfg.Timeout), nil
}
