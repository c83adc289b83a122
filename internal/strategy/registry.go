package strategy

import (
	"fmt"
	"slices"
	"sync"

	"github.com/yourorg/checkout-payments/internal/checkout"
)

// Registry maps payment method ids and gateways to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register binds key (a method id or a gateway) to s, replacing any previous binding.
func (r *Registry) Register(key string, s Strategy) {
	if s == nil {
		panic("strategy cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[key] = s
}

// Get resolves the strategy for method, by id first and then by gateway.
func (r *Registry) Get(method checkout.PaymentMethod) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.strategies[method.ID]; ok {
		return s, nil
	}
	if method.Gateway != "" {
		if s, ok := r.strategies[method.Gateway]; ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: method %q (gateway %q)", ErrStrategyNotFound, method.ID, method.Gateway)
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.strategies))
	for k := range r.strategies {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
