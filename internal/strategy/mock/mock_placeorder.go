package mock

import (
	"context"
	"sync"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/strategy"
)

// PlaceOrderCall is one recorded PlaceOrderService call.
type PlaceOrderCall struct {
	Method         string
	Payload        checkout.OrderRequest
	Payment        checkout.Payment
	UseStoreCredit bool
	ID             string
	Options        checkout.RequestOptions
}

// MockPlaceOrderService records calls and delegates to the function fields.
// Unset functions succeed and return the store's state (or State with no store).
type MockPlaceOrderService struct {
	Store checkout.Store
	State checkout.State

	SubmitOrderFunc              func(ctx context.Context, payload checkout.OrderRequest, opts checkout.RequestOptions) (checkout.State, error)
	LoadPaymentMethodFunc        func(ctx context.Context, methodID string) (checkout.State, error)
	FinalizeOrderFunc            func(ctx context.Context, orderID string, opts checkout.RequestOptions) (checkout.State, error)
	InitializeOffsitePaymentFunc func(ctx context.Context, payment checkout.Payment, useStoreCredit bool, opts checkout.RequestOptions) (checkout.State, error)

	mu    sync.Mutex
	calls []PlaceOrderCall
}

var _ strategy.PlaceOrderService = (*MockPlaceOrderService)(nil)

// Calls returns the recorded calls in order.
func (m *MockPlaceOrderService) Calls() []PlaceOrderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PlaceOrderCall(nil), m.calls...)
}

// CallNames returns the method names of the recorded calls.
func (m *MockPlaceOrderService) CallNames() []string {
	calls := m.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Method
	}
	return names
}

func (m *MockPlaceOrderService) record(c PlaceOrderCall) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

func (m *MockPlaceOrderService) state() checkout.State {
	if m.Store != nil {
		return m.Store.GetState()
	}
	return m.State
}

// SubmitOrder implements strategy.PlaceOrderService.
func (m *MockPlaceOrderService) SubmitOrder(ctx context.Context, payload checkout.OrderRequest, opts checkout.RequestOptions) (checkout.State, error) {
	m.record(PlaceOrderCall{Method: "SubmitOrder", Payload: payload.Clone(), Options: opts})
	if m.SubmitOrderFunc != nil {
		return m.SubmitOrderFunc(ctx, payload, opts)
	}
	return m.state(), nil
}

// LoadPaymentMethod implements strategy.PlaceOrderService.
func (m *MockPlaceOrderService) LoadPaymentMethod(ctx context.Context, methodID string) (checkout.State, error) {
	m.record(PlaceOrderCall{Method: "LoadPaymentMethod", ID: methodID})
	if m.LoadPaymentMethodFunc != nil {
		return m.LoadPaymentMethodFunc(ctx, methodID)
	}
	return m.state(), nil
}

// FinalizeOrder implements strategy.PlaceOrderService.
func (m *MockPlaceOrderService) FinalizeOrder(ctx context.Context, orderID string, opts checkout.RequestOptions) (checkout.State, error) {
	m.record(PlaceOrderCall{Method: "FinalizeOrder", ID: orderID, Options: opts})
	if m.FinalizeOrderFunc != nil {
		return m.FinalizeOrderFunc(ctx, orderID, opts)
	}
	return m.state(), nil
}

// InitializeOffsitePayment implements strategy.PlaceOrderService.
func (m *MockPlaceOrderService) InitializeOffsitePayment(ctx context.Context, payment checkout.Payment, useStoreCredit bool, opts checkout.RequestOptions) (checkout.State, error) {
	m.record(PlaceOrderCall{Method: "InitializeOffsitePayment", Payment: payment, UseStoreCredit: useStoreCredit, Options: opts})
	if m.InitializeOffsitePaymentFunc != nil {
		return m.InitializeOffsitePaymentFunc(ctx, payment, useStoreCredit, opts)
	}
	return m.state(), nil
}
