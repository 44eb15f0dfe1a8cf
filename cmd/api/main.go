package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/clovermart/api/internal/di"
	"github.com/clovermart/api/internal/handlers"
	"github.com/clovermart/api/internal/payments"
	"github.com/clovermart/api/internal/platform/config"
	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/platform/idempotency"
	"github.com/clovermart/api/internal/platform/jobs"
	"github.com/clovermart/api/internal/platform/observability"
	platformstorage "github.com/clovermart/api/internal/platform/storage"
	"github.com/clovermart/api/internal/repositories"
	firestoreRepo "github.com/clovermart/api/internal/repositories/firestore"
	"github.com/clovermart/api/internal/repositories/memory"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var (
		registry         repositories.Registry
		idempotencyStore idempotency.Store
		healthOpts       []handlers.HealthOption
	)
	healthOpts = append(healthOpts, handlers.WithHealthVersion(buildVersion()))

	if cfg.Firestore.ProjectID != "" {
		firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
		firestoreClient, err := firestoreProvider.Client(ctx)
		if err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := firestoreProvider.Close(closeCtx); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()

		registry, err = firestoreRepo.NewRegistry(firestoreProvider)
		if err != nil {
			logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
		}
		idempotencyStore = idempotency.NewFirestoreStore(firestoreClient)
		healthOpts = append(healthOpts, handlers.WithReadinessProbe("firestore", func(ctx context.Context) error {
			iter := firestoreClient.Collections(ctx)
			if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
				return err
			}
			return nil
		}))
	} else {
		logger.Warn("firestore project not configured; using in-memory repositories")
		registry = memory.NewRegistry()
		idempotencyStore = idempotency.NewMemoryStore()
	}

	containerOpts := []di.Option{di.WithLogger(logger)}

	if cfg.Storage.InvoiceBucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		bucket, err := platformstorage.NewBucket(storageClient, cfg.Storage.InvoiceBucket)
		if err != nil {
			logger.Fatal("failed to initialise invoice bucket", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithArtifactStore(bucket))
	} else {
		logger.Warn("invoice bucket not configured; invoice documents will not be archived")
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) != "" {
		paymentsLogger := logger.Named("payments")
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: func(_ context.Context, event string, fields map[string]any) {
				zFields := make([]zap.Field, 0, len(fields)+1)
				zFields = append(zFields, zap.String("event", event))
				for k, v := range fields {
					zFields = append(zFields, zap.Any(k, v))
				}
				paymentsLogger.Debug("stripe log", zFields...)
			},
			Clock: time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithPaymentsProvider(stripeProvider))
	} else {
		logger.Warn("stripe api key not configured; checkout sessions are disabled")
	}

	if cfg.PubSub.OrderTopic != "" && cfg.PubSub.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(cfg.PubSub.OrderTopic)
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubOrderPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithOrderPublisher(publisher))
		healthOpts = append(healthOpts, handlers.WithReadinessProbe("pubsub", func(ctx context.Context) error {
			exists, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("topic %q does not exist", cfg.PubSub.OrderTopic)
			}
			return nil
		}))
	} else {
		logger.Warn("order topic not configured; completion events will not be published")
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	projectID := cfg.Firestore.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cartHandlers := handlers.NewCartHandlers(container.Services.Cart)
	checkoutHandlers := handlers.NewCheckoutHandlers(container.Services.Checkout)
	invoiceHandlers := handlers.NewInvoiceHandlers(container.Services.Invoices)
	couponHandlers := handlers.NewCouponHandlers(container.Services.Coupons)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCheckoutMiddlewares(idempotencyMiddleware),
		handlers.WithInvoiceRoutes(invoiceHandlers.Routes),
		handlers.WithCouponRoutes(couponHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("clovermart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildVersion() string {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	return version
}
