package strategy

import (
	"context"
	"sync"

	"github.com/yourorg/checkout-payments/internal/checkout"
)

// Base carries the bookkeeping shared by all strategies. Concrete strategies
// embed it and override the lifecycle methods they need, calling back into
// Base for the common part.
type Base struct {
	name        string
	store       checkout.Store
	placeOrders PlaceOrderService

	mu          sync.RWMutex
	initialized bool
}

// NewBase creates the shared part of a strategy called name.
func NewBase(name string, store checkout.Store, placeOrders PlaceOrderService) *Base {
	if store == nil {
		panic("checkout store cannot be nil")
	}
	if placeOrders == nil {
		panic("place order service cannot be nil")
	}
	return &Base{name: name, store: store, placeOrders: placeOrders}
}

// Name returns the strategy name used in errors, logs and metrics.
func (b *Base) Name() string { return b.name }

// Store returns the checkout store the strategy reads from.
func (b *Base) Store() checkout.Store { return b.store }

// PlaceOrders returns the order submission collaborator.
func (b *Base) PlaceOrders() PlaceOrderService { return b.placeOrders }

// Initialize marks the strategy initialized.
func (b *Base) Initialize(_ context.Context, _ InitializeOptions) (checkout.State, error) {
	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
	return b.store.GetState(), nil
}

// Finalize succeeds without doing anything once the strategy is initialized.
func (b *Base) Finalize(_ context.Context, _ checkout.RequestOptions) (checkout.State, error) {
	if err := b.RequireInitialized(); err != nil {
		return b.store.GetState(), err
	}
	return b.store.GetState(), nil
}

// Deinitialize clears the initialized flag. It is safe without a prior Initialize.
func (b *Base) Deinitialize(_ context.Context, _ checkout.RequestOptions) (checkout.State, error) {
	b.mu.Lock()
	b.initialized = false
	b.mu.Unlock()
	return b.store.GetState(), nil
}

// IsInitialized reports whether Initialize completed and Deinitialize has not run since.
func (b *Base) IsInitialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// RequireInitialized returns a NotInitializedError unless the strategy is initialized.
func (b *Base) RequireInitialized() error {
	if !b.IsInitialized() {
		return &NotInitializedError{Strategy: b.name}
	}
	return nil
}
