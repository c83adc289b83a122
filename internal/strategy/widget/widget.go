// Package widget implements the on-site payment strategy: the provider
// renders a widget in the checkout page, authorizes the shopper there, and
// the resulting authorization token is registered before the order is placed.
package widget

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/remotecheckout"
	"github.com/yourorg/checkout-payments/internal/strategy"
)

// Strategy is the on-site widget payment strategy.
type Strategy struct {
	*strategy.Base

	initializer PaymentInitializer
	loader      ScriptLoader
	logger      *zap.Logger

	lifecycle sync.Mutex

	mu          sync.Mutex
	sdk         SDK
	unsubscribe checkout.Unsubscribe
}

var _ strategy.Strategy = (*Strategy)(nil)

// NewStrategy creates a widget strategy called name.
func NewStrategy(
	name string,
	store checkout.Store,
	placeOrders strategy.PlaceOrderService,
	initializer PaymentInitializer,
	loader ScriptLoader,
	logger *zap.Logger,
) *Strategy {
	if initializer == nil {
		panic("payment initializer cannot be nil")
	}
	if loader == nil {
		panic("script loader cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{
		Base:        strategy.NewBase(name, store, placeOrders),
		initializer: initializer,
		loader:      loader,
		logger:      logger.With(zap.String("component", "widget_strategy"), zap.String("strategy", name)),
	}
}

// Initialize loads the provider SDK, renders the widget, and re-renders it
// whenever the cart grand total changes so the widget never shows a stale price.
// Initialize and Deinitialize are serialized, so at most one subscription is live.
func (s *Strategy) Initialize(ctx context.Context, opts strategy.InitializeOptions) (checkout.State, error) {
	if opts.MethodID == "" {
		return s.Store().GetState(), strategy.NewMissingDataError(`Unable to initialize payment widget because "methodId" field is missing.`)
	}
	if opts.Widget == nil || opts.Widget.Container == "" {
		return s.Store().GetState(), strategy.NewMissingDataError(`Unable to initialize payment widget because "container" field is missing.`)
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	ctx, cancel := opts.Request.WithTimeout(ctx)
	defer cancel()

	sdk, err := s.loader.Load(ctx)
	if err != nil {
		return s.Store().GetState(), err
	}

	s.release()
	s.mu.Lock()
	s.sdk = sdk
	s.mu.Unlock()

	unsubscribe := s.Store().Subscribe(func(ctx context.Context, _ checkout.State) {
		if _, err := s.loadWidget(ctx, opts); err != nil {
			s.logger.Warn("widget_reload_failed",
				zap.String("method_id", opts.MethodID),
				zap.Error(err),
			)
		}
	}, grandTotal)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	if state, err := s.loadWidget(ctx, opts); err != nil {
		return state, err
	}
	return s.Base.Initialize(ctx, opts)
}

// Deinitialize releases the grand total subscription, if any.
func (s *Strategy) Deinitialize(ctx context.Context, opts checkout.RequestOptions) (checkout.State, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.release()
	return s.Base.Deinitialize(ctx, opts)
}

// release drops the current subscription. Callers hold s.lifecycle.
func (s *Strategy) release() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Execute authorizes the shopper through the widget, registers the
// authorization token and submits the order.
func (s *Strategy) Execute(ctx context.Context, payload checkout.OrderRequest, opts checkout.RequestOptions) (checkout.State, error) {
	if err := s.RequireInitialized(); err != nil {
		return s.Store().GetState(), err
	}
	if payload.Payment == nil || payload.Payment.Name == "" {
		return s.Store().GetState(), strategy.NewMissingDataError(`Unable to submit payment because "payload.payment.name" field is missing.`)
	}

	res, err := s.authorize(ctx)
	if err != nil {
		return s.Store().GetState(), err
	}

	action := s.initializer.InitializePayment(payload.Payment.Name, remotecheckout.PaymentPayload{
		AuthorizationToken: res.AuthorizationToken,
	})
	if state, err := s.Store().Dispatch(ctx, action); err != nil {
		return state, err
	}

	// Store credit cannot be combined with this provider yet; leaving it on
	// would deduct the shopper's credit without the provider knowing.
	return s.PlaceOrders().SubmitOrder(ctx, payload.WithoutPaymentData().WithStoreCredit(false), opts)
}

func (s *Strategy) currentSDK() SDK {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sdk
}

func (s *Strategy) loadWidget(ctx context.Context, opts strategy.InitializeOptions) (checkout.State, error) {
	state, err := s.PlaceOrders().LoadPaymentMethod(ctx, opts.MethodID)
	if err != nil {
		return state, err
	}

	method, ok := state.GetPaymentMethod(opts.MethodID)
	if !ok || method.ClientToken == "" {
		return state, strategy.NewMissingDataError(`Unable to load payment widget because "paymentMethod.clientToken" field is missing.`)
	}

	sdk := s.currentSDK()
	if sdk == nil {
		return state, &strategy.NotInitializedError{Strategy: s.Name()}
	}

	sdk.Init(InitOptions{ClientToken: method.ClientToken})
	if err := sdk.Load(ctx, LoadOptions{Container: opts.Widget.Container}, opts.Widget.LoadCallback); err != nil {
		return state, err
	}
	return s.Store().GetState(), nil
}

// authorize turns the SDK callback into a single result. An unapproved
// answer becomes a RejectionError carrying the provider response.
func (s *Strategy) authorize(ctx context.Context) (AuthorizationResponse, error) {
	sdk := s.currentSDK()
	if sdk == nil {
		return AuthorizationResponse{}, &strategy.NotInitializedError{Strategy: s.Name()}
	}

	done := make(chan AuthorizationResponse, 1)
	var once sync.Once
	err := sdk.Authorize(ctx, AuthorizeOptions{}, func(res AuthorizationResponse) {
		once.Do(func() { done <- res })
	})
	if err != nil {
		return AuthorizationResponse{}, err
	}

	select {
	case res := <-done:
		if !res.Approved {
			return res, &strategy.RejectionError{Provider: s.Name(), Result: res}
		}
		return res, nil
	case <-ctx.Done():
		return AuthorizationResponse{}, ctx.Err()
	}
}

func grandTotal(state checkout.State) any {
	cart := state.GetCart()
	if cart == nil {
		return nil
	}
	return cart.GrandTotal.String()
}
