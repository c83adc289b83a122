// Package offsite implements the redirect payment strategy: the order is
// submitted first and the shopper is then handed off to the provider, which
// acknowledges the payment out of band.
package offsite

import (
	"context"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/strategy"
)

// PaymentRetention decides whether an order request keeps its payment
// section on submission.
type PaymentRetention interface {
	RetainPayment(payload checkout.OrderRequest) (bool, error)
}

// GatewayRetention retains the payment section for the listed gateways.
type GatewayRetention []string

// RetainPayment implements PaymentRetention.
func (g GatewayRetention) RetainPayment(payload checkout.OrderRequest) (bool, error) {
	if payload.Payment == nil {
		return false, nil
	}
	for _, gw := range g {
		if payload.Payment.Gateway == gw {
			return true, nil
		}
	}
	return false, nil
}

// Strategy is the off-site redirect payment strategy.
type Strategy struct {
	*strategy.Base
	retention PaymentRetention
}

var _ strategy.Strategy = (*Strategy)(nil)

// NewStrategy creates an off-site strategy called name. A nil retention
// keeps the payment section only for adyen.
func NewStrategy(name string, store checkout.Store, placeOrders strategy.PlaceOrderService, retention PaymentRetention) *Strategy {
	if retention == nil {
		retention = GatewayRetention{"adyen"}
	}
	return &Strategy{
		Base:      strategy.NewBase(name, store, placeOrders),
		retention: retention,
	}
}

// Execute submits the order and then starts the off-site hand-off with the
// caller's original payment descriptor.
func (s *Strategy) Execute(ctx context.Context, payload checkout.OrderRequest, opts checkout.RequestOptions) (checkout.State, error) {
	if err := s.RequireInitialized(); err != nil {
		return s.Store().GetState(), err
	}
	if payload.Payment == nil {
		return s.Store().GetState(), strategy.NewMissingDataError(`Unable to submit payment because "payload.payment" argument is not provided.`)
	}

	retain, err := s.retention.RetainPayment(payload)
	if err != nil {
		return s.Store().GetState(), err
	}
	outgoing := payload.Clone()
	if !retain {
		outgoing = payload.WithoutPayment()
	}

	if state, err := s.PlaceOrders().SubmitOrder(ctx, outgoing, opts); err != nil {
		return state, err
	}

	payment := payload.Clone().Payment
	return s.PlaceOrders().InitializeOffsitePayment(ctx, *payment, payload.UseStoreCredit, opts)
}

// Finalize completes an order whose payment the provider has acknowledged.
// Any other order falls through to the default finalize.
func (s *Strategy) Finalize(ctx context.Context, opts checkout.RequestOptions) (checkout.State, error) {
	if err := s.RequireInitialized(); err != nil {
		return s.Store().GetState(), err
	}

	order := s.Store().GetState().GetOrder()
	if order == nil {
		return s.Store().GetState(), strategy.NewMissingDataError(`Unable to finalize order because "order" data is missing.`)
	}

	if order.OrderID != "" && acknowledged(order.Payment.Status) {
		return s.PlaceOrders().FinalizeOrder(ctx, order.OrderID, opts)
	}
	return s.Base.Finalize(ctx, opts)
}

func acknowledged(status string) bool {
	return status == checkout.PaymentStatusAcknowledge || status == checkout.PaymentStatusFinalize
}
