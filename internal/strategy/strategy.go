// Package strategy defines the lifecycle every payment strategy implements
// and the pieces they share: the embeddable Base, error kinds, and the
// registry that maps payment methods to strategies.
//
// A strategy moves through uninitialized → initialized → (execute)* →
// (finalize)? → deinitialized. Execute and Finalize fail with a
// NotInitializedError outside the initialized state.
package strategy

import (
	"context"

	"github.com/yourorg/checkout-payments/internal/checkout"
)

// LoadResponse is reported by a provider widget after it renders.
type LoadResponse struct {
	ShowForm bool   `json:"show_form"`
	Error    string `json:"error,omitempty"`
}

// LoadCallback is invoked by a provider once its widget has loaded.
type LoadCallback func(LoadResponse)

// WidgetOptions configure strategies that render a provider widget.
type WidgetOptions struct {
	Container    string
	LoadCallback LoadCallback
}

// InitializeOptions are passed to Strategy.Initialize.
type InitializeOptions struct {
	MethodID string
	Gateway  string
	Widget   *WidgetOptions
	Request  checkout.RequestOptions
}

// Strategy is a pluggable per-provider implementation of the payment lifecycle.
type Strategy interface {
	Initialize(ctx context.Context, opts InitializeOptions) (checkout.State, error)
	Execute(ctx context.Context, payload checkout.OrderRequest, opts checkout.RequestOptions) (checkout.State, error)
	Finalize(ctx context.Context, opts checkout.RequestOptions) (checkout.State, error)
	Deinitialize(ctx context.Context, opts checkout.RequestOptions) (checkout.State, error)
	IsInitialized() bool
}

// PlaceOrderService is the order submission collaborator used by strategies.
type PlaceOrderService interface {
	SubmitOrder(ctx context.Context, payload checkout.OrderRequest, opts checkout.RequestOptions) (checkout.State, error)
	LoadPaymentMethod(ctx context.Context, methodID string) (checkout.State, error)
	FinalizeOrder(ctx context.Context, orderID string, opts checkout.RequestOptions) (checkout.State, error)
	InitializeOffsitePayment(ctx context.Context, payment checkout.Payment, useStoreCredit bool, opts checkout.RequestOptions) (checkout.State, error)
}
