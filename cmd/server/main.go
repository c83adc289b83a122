package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/config"
	"github.com/yourorg/checkout-payments/internal/events"
	"github.com/yourorg/checkout-payments/internal/monitor"
	"github.com/yourorg/checkout-payments/internal/pkg/logging"
	"github.com/yourorg/checkout-payments/internal/placeorder"
	"github.com/yourorg/checkout-payments/internal/policy"
	"github.com/yourorg/checkout-payments/internal/processor"
	"github.com/yourorg/checkout-payments/internal/provider/klarna"
	"github.com/yourorg/checkout-payments/internal/remotecheckout"
	"github.com/yourorg/checkout-payments/internal/strategy"
	"github.com/yourorg/checkout-payments/internal/strategy/offsite"
	"github.com/yourorg/checkout-payments/internal/strategy/widget"
	"github.com/yourorg/checkout-payments/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	app := fx.New(
		fx.Provide(
			loadConfig,
			newLogger,
			newStore,
			newBackend,
			newOrderService,
			newRetention,
			newKlarnaLoader,
			newRemoteCheckout,
			newRegistry,
			newPublisher,
			processor.NewProcessor,
			newAPI,
		),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Invoke(setupTelemetry, registerHTTPServer),
	)
	app.Run()
}

func loadConfig() (*config.Config, error) {
	return config.Load("")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.App.Name, cfg.App.Env, cfg.App.LogLevel)
}

func newStore(cfg *config.Config) (checkout.Store, error) {
	total, err := decimal.NewFromString(cfg.Checkout.GrandTotal)
	if err != nil {
		return nil, fmt.Errorf("checkout.grand_total: %w", err)
	}
	state := checkout.State{}.WithCart(checkout.Cart{
		ID:         "cart-1",
		GrandTotal: total,
		Currency:   cfg.Checkout.Currency,
	})
	for _, m := range cfg.Checkout.PaymentMethods {
		state = state.WithPaymentMethod(m.PaymentMethod())
	}
	return checkout.NewMemoryStore(state), nil
}

func newBackend(cfg *config.Config) *placeorder.MemoryClient {
	methods := make([]checkout.PaymentMethod, 0, len(cfg.Checkout.PaymentMethods))
	for _, m := range cfg.Checkout.PaymentMethods {
		methods = append(methods, m.PaymentMethod())
	}
	return placeorder.NewMemoryClient(cfg.Checkout.RedirectBase, methods...)
}

func newOrderService(cfg *config.Config, store checkout.Store, backend *placeorder.MemoryClient, logger *zap.Logger) (*placeorder.Service, error) {
	contract, err := newOrderContract(cfg.Checkout.OrderSchema)
	if err != nil {
		return nil, err
	}
	return placeorder.NewService(store, backend, contract, logger), nil
}

// newOrderContract loads the order schema at path, or the built-in one.
func newOrderContract(path string) (*monitor.ContractMonitor, error) {
	if path == "" {
		return monitor.NewOrderContractMonitor()
	}
	return monitor.NewContractMonitor(path)
}

func newRetention(cfg *config.Config) (offsite.PaymentRetention, error) {
	enforcer, err := policy.NewPaymentPolicyEnforcer(cfg.Offsite.RetentionRules)
	if err != nil {
		return nil, err
	}
	return enforcer, nil
}

func newKlarnaLoader(cfg *config.Config, logger *zap.Logger) widget.ScriptLoader {
	return klarna.NewLoader(klarna.NewClient(cfg.Klarna, nil, logger))
}

func newRemoteCheckout(cfg *config.Config) widget.PaymentInitializer {
	client := &http.Client{
		Timeout:   cfg.RemoteCheckout.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return remotecheckout.NewActionCreator(remotecheckout.NewHTTPRequester(cfg.RemoteCheckout.BaseURL, client))
}

// newRegistry binds every configured payment method id to its own strategy
// instance, since strategies hold per-method lifecycle state.
func newRegistry(
	cfg *config.Config,
	store checkout.Store,
	orders *placeorder.Service,
	retention offsite.PaymentRetention,
	loader widget.ScriptLoader,
	initializer widget.PaymentInitializer,
	logger *zap.Logger,
) (*strategy.Registry, error) {
	registry := strategy.NewRegistry()
	for _, m := range cfg.Checkout.PaymentMethods {
		switch m.Strategy {
		case config.StrategyWidget:
			registry.Register(m.ID, widget.NewStrategy(m.ID, store, orders, initializer, loader, logger))
		case config.StrategyOffsite:
			registry.Register(m.ID, offsite.NewStrategy(m.ID, store, orders, retention))
		default:
			return nil, fmt.Errorf("payment method %q: unknown strategy %q", m.ID, m.Strategy)
		}
	}
	logger.Info("strategies_registered", zap.Strings("methods", registry.Keys()))
	return registry, nil
}

func newPublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) events.Publisher {
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		publisher = events.NewProducer(cfg.Events.Brokers, cfg.Events.Topic)
		logger.Info("event_publishing_enabled",
			zap.Strings("brokers", cfg.Events.Brokers),
			zap.String("topic", cfg.Events.Topic),
		)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return publisher.Close() },
	})
	return publisher
}

func newAPI(
	cfg *config.Config,
	proc *processor.Processor,
	store checkout.Store,
	orders *placeorder.Service,
	backend *placeorder.MemoryClient,
	logger *zap.Logger,
) *api {
	return &api{
		proc:           proc,
		store:          store,
		orders:         orders,
		backend:        backend,
		logger:         logger,
		requestTimeout: cfg.Server.RequestTimeout,
	}
}

func setupTelemetry(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) error {
	shutdown, err := telemetry.InitTracer(context.Background(), cfg.App.Name, cfg.App.Version, cfg.Telemetry)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := shutdown(ctx); err != nil {
				logger.Warn("tracer_shutdown_failed", zap.Error(err))
			}
			return nil
		},
	})
	return nil
}

func registerHTTPServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, a *api, logger *zap.Logger) {
	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           setupRouter(a, cfg.App.Name, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Info("http_server_starting", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http_server_failed", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			logger.Info("http_server_stopping")
			return srv.Shutdown(ctx)
		},
	})
}
