package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clovermart/api/internal/payments"
	"github.com/clovermart/api/internal/platform/config"
	"github.com/clovermart/api/internal/platform/requestctx"
	"github.com/clovermart/api/internal/repositories"
	"github.com/clovermart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete
// implementations are assembled via dependency injection in NewContainer.
type Services struct {
	Cart     services.CartService
	Coupons  services.CouponService
	Invoices services.InvoiceService
	Checkout services.CheckoutService
}

// Container wires repositories, services, and supporting infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises optional container dependencies. Production wiring supplies
// real providers; tests leave them unset and exercise the in-memory paths.
type Option func(*containerConfig)

type containerConfig struct {
	logger    *zap.Logger
	clock     func() time.Time
	payments  payments.Provider
	publisher services.OrderEventPublisher
	artifacts services.ArtifactStore
}

// WithLogger attaches a fallback logger used when the request context carries none.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *containerConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(cfg *containerConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithPaymentsProvider supplies the payment provider used by checkout. Without
// one, checkout sessions report the payments-unconfigured error.
func WithPaymentsProvider(provider payments.Provider) Option {
	return func(cfg *containerConfig) {
		cfg.payments = provider
	}
}

// WithOrderPublisher supplies the publisher for order completion events.
func WithOrderPublisher(publisher services.OrderEventPublisher) Option {
	return func(cfg *containerConfig) {
		cfg.publisher = publisher
	}
}

// WithArtifactStore supplies durable storage for rendered invoice documents.
func WithArtifactStore(store services.ArtifactStore) Option {
	return func(cfg *containerConfig) {
		cfg.artifacts = store
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides a
// Firestore-backed registry; tests can supply the in-memory one.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	cc := containerConfig{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cc)
		}
	}

	svc, err := buildServices(cfg, reg, cc)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, cc containerConfig) (Services, error) {
	var svc Services

	logger := serviceLogger(cc.logger)

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository:      reg.Carts(),
		Clock:           cc.clock,
		DefaultCurrency: cfg.Pricing.Currency,
		Logger:          logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
		Coupons:      reg.Coupons(),
		Redemptions:  reg.Redemptions(),
		Clock:        cc.clock,
		Logger:       logger,
		CodeAlphabet: cfg.Coupons.CodeAlphabet,
		CodeLength:   cfg.Coupons.CodeLength,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build coupon service: %w", err)
	}
	svc.Coupons = couponSvc

	invoiceSvc, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Invoices:    reg.Invoices(),
		Renderer:    services.TextInvoiceRenderer{},
		Artifacts:   cc.artifacts,
		Clock:       cc.clock,
		Logger:      logger,
		SequenceMax: cfg.Invoices.SequenceMax,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build invoice service: %w", err)
	}
	svc.Invoices = invoiceSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:    svc.Cart,
		Coupons:  svc.Coupons,
		Invoices: svc.Invoices,
		Calculator: services.OrderCalculator{
			TaxRateBps:  cfg.Pricing.TaxRateBps,
			ShippingFee: cfg.Pricing.ShippingFee,
		},
		Payments:  cc.payments,
		Publisher: cc.publisher,
		Clock:     cc.clock,
		Logger:    logger,
		Currency:  cfg.Pricing.Currency,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	return svc, nil
}

// serviceLogger adapts zap to the event-plus-fields shape the services expect.
// The request-scoped logger wins; the fallback covers work outside a request.
func serviceLogger(fallback *zap.Logger) func(context.Context, string, map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() && fallback != nil {
			logger = fallback
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
