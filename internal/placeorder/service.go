// Package placeorder submits orders to the checkout backend and keeps the
// checkout store in step with the backend's answers.
package placeorder

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/monitor"
	"github.com/yourorg/checkout-payments/internal/strategy"
)

// Service implements strategy.PlaceOrderService over a backend Client.
type Service struct {
	store    checkout.Store
	client   Client
	contract *monitor.ContractMonitor
	logger   *zap.Logger
}

var _ strategy.PlaceOrderService = (*Service)(nil)

// NewService creates a Service. A nil contract skips payload validation.
func NewService(store checkout.Store, client Client, contract *monitor.ContractMonitor, logger *zap.Logger) *Service {
	if store == nil {
		panic("checkout store cannot be nil")
	}
	if client == nil {
		panic("checkout backend client cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		client:   client,
		contract: contract,
		logger:   logger.With(zap.String("component", "place_order")),
	}
}

// SubmitOrder validates payload against the order contract and places the order.
func (s *Service) SubmitOrder(ctx context.Context, payload checkout.OrderRequest, opts checkout.RequestOptions) (checkout.State, error) {
	if s.contract != nil {
		if err := s.contract.ValidateOrder(payload); err != nil {
			var contractErr *monitor.ContractError
			if errors.As(err, &contractErr) {
				return s.store.GetState(), strategy.NewMissingDataError("Unable to submit order: %s", contractErr.Error())
			}
			return s.store.GetState(), err
		}
	}

	return s.dispatchOrder(ctx, opts, "order_submitted", func(ctx context.Context, _ checkout.State) (checkout.Order, error) {
		return s.client.SubmitOrder(ctx, payload)
	})
}

// LoadPaymentMethod fetches methodID from the backend into the store.
func (s *Service) LoadPaymentMethod(ctx context.Context, methodID string) (checkout.State, error) {
	return s.store.Dispatch(ctx, func(ctx context.Context, current checkout.State) (checkout.State, error) {
		method, err := s.client.GetPaymentMethod(ctx, methodID)
		if err != nil {
			return current, err
		}
		return current.WithPaymentMethod(method), nil
	})
}

// FinalizeOrder completes orderID.
func (s *Service) FinalizeOrder(ctx context.Context, orderID string, opts checkout.RequestOptions) (checkout.State, error) {
	return s.dispatchOrder(ctx, opts, "order_finalized", func(ctx context.Context, _ checkout.State) (checkout.Order, error) {
		return s.client.FinalizeOrder(ctx, orderID)
	})
}

// InitializeOffsitePayment attaches payment to the current order and records
// the redirect the shopper must follow.
func (s *Service) InitializeOffsitePayment(ctx context.Context, payment checkout.Payment, useStoreCredit bool, opts checkout.RequestOptions) (checkout.State, error) {
	return s.dispatchOrder(ctx, opts, "offsite_payment_initialized", func(ctx context.Context, current checkout.State) (checkout.Order, error) {
		order := current.GetOrder()
		if order == nil || order.OrderID == "" {
			return checkout.Order{}, strategy.NewMissingDataError(`Unable to initialize offsite payment because "order.orderId" field is missing.`)
		}
		return s.client.InitializeOffsitePayment(ctx, order.OrderID, payment, useStoreCredit)
	})
}

// SyncOrder reloads orderID from the backend, picking up out-of-band
// payment acknowledgments.
func (s *Service) SyncOrder(ctx context.Context, orderID string, opts checkout.RequestOptions) (checkout.State, error) {
	return s.dispatchOrder(ctx, opts, "order_synced", func(ctx context.Context, _ checkout.State) (checkout.Order, error) {
		return s.client.GetOrder(ctx, orderID)
	})
}

func (s *Service) dispatchOrder(
	ctx context.Context,
	opts checkout.RequestOptions,
	event string,
	call func(ctx context.Context, current checkout.State) (checkout.Order, error),
) (checkout.State, error) {
	ctx, cancel := opts.WithTimeout(ctx)
	defer cancel()

	state, err := s.store.Dispatch(ctx, func(ctx context.Context, current checkout.State) (checkout.State, error) {
		order, err := call(ctx, current)
		if err != nil {
			return current, err
		}
		return current.WithOrder(order), nil
	})
	if err != nil {
		return state, err
	}

	if order := state.GetOrder(); order != nil {
		s.logger.Info(event,
			zap.String("order_id", order.OrderID),
			zap.String("payment_status", order.Payment.Status),
		)
	}
	return state, nil
}
