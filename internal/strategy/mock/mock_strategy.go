package mock

import (
	"context"
	"sync"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/strategy"
)

// MockStrategy is a Strategy whose behaviour is set through function fields.
// Unset functions succeed and return State.
type MockStrategy struct {
	Name  string
	State checkout.State

	InitializeFunc   func(ctx context.Context, opts strategy.InitializeOptions) (checkout.State, error)
	ExecuteFunc      func(ctx context.Context, payload checkout.OrderRequest, opts checkout.RequestOptions) (checkout.State, error)
	FinalizeFunc     func(ctx context.Context, opts checkout.RequestOptions) (checkout.State, error)
	DeinitializeFunc func(ctx context.Context, opts checkout.RequestOptions) (checkout.State, error)

	mu          sync.Mutex
	initialized bool
	Calls       []string
}

var _ strategy.Strategy = (*MockStrategy)(nil)

// NewMockStrategy creates a new MockStrategy.
func NewMockStrategy(name string) *MockStrategy {
	return &MockStrategy{Name: name}
}

func (m *MockStrategy) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

// Initialize implements strategy.Strategy.
func (m *MockStrategy) Initialize(ctx context.Context, opts strategy.InitializeOptions) (checkout.State, error) {
	m.record("initialize")
	if m.InitializeFunc != nil {
		state, err := m.InitializeFunc(ctx, opts)
		if err == nil {
			m.setInitialized(true)
		}
		return state, err
	}
	m.setInitialized(true)
	return m.State, nil
}

// Execute implements strategy.Strategy.
func (m *MockStrategy) Execute(ctx context.Context, payload checkout.OrderRequest, opts checkout.RequestOptions) (checkout.State, error) {
	m.record("execute")
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, payload, opts)
	}
	return m.State, nil
}

// Finalize implements strategy.Strategy.
func (m *MockStrategy) Finalize(ctx context.Context, opts checkout.RequestOptions) (checkout.State, error) {
	m.record("finalize")
	if m.FinalizeFunc != nil {
		return m.FinalizeFunc(ctx, opts)
	}
	return m.State, nil
}

// Deinitialize implements strategy.Strategy.
func (m *MockStrategy) Deinitialize(ctx context.Context, opts checkout.RequestOptions) (checkout.State, error) {
	m.record("deinitialize")
	m.setInitialized(false)
	if m.DeinitializeFunc != nil {
		return m.DeinitializeFunc(ctx, opts)
	}
	return m.State, nil
}

// IsInitialized implements strategy.Strategy.
func (m *MockStrategy) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

func (m *MockStrategy) setInitialized(v bool) {
	m.mu.Lock()
	m.initialized = v
	m.mu.Unlock()
}
