package placeorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/monitor"
	"github.com/yourorg/checkout-payments/internal/strategy"
)

func newService(t *testing.T) (*Service, *MemoryClient, *checkout.MemoryStore) {
	t.Helper()
	contract, err := monitor.NewOrderContractMonitor()
	require.NoError(t, err)
	client := NewMemoryClient("https://pay.example/redirect",
		checkout.PaymentMethod{ID: "klarna", Gateway: "klarna", ClientToken: "ct_1"},
		checkout.PaymentMethod{ID: "adyen", Gateway: "adyen"},
	)
	store := checkout.NewMemoryStore(checkout.State{})
	return NewService(store, client, contract, nil), client, store
}

func TestService_SubmitOrder(t *testing.T) {
	t.Run("Stores the placed order", func(t *testing.T) {
		svc, client, store := newService(t)
		req := checkout.OrderRequest{Payment: &checkout.Payment{Name: "klarna"}, UseStoreCredit: false}

		state, err := svc.SubmitOrder(context.Background(), req, checkout.RequestOptions{})
		require.NoError(t, err)
		order := state.GetOrder()
		require.NotNil(t, order)
		assert.NotEmpty(t, order.OrderID)
		assert.Equal(t, checkout.PaymentStatusInitialize, order.Payment.Status)
		assert.Equal(t, order.OrderID, store.GetState().GetOrder().OrderID)

		submitted, ok := client.SubmittedRequest(order.OrderID)
		require.True(t, ok)
		assert.Equal(t, req, submitted)
	})

	t.Run("Contract violation is missing data", func(t *testing.T) {
		svc, _, store := newService(t)
		_, err := svc.SubmitOrder(context.Background(), checkout.OrderRequest{Payment: &checkout.Payment{Gateway: "adyen"}}, checkout.RequestOptions{})
		require.ErrorIs(t, err, strategy.ErrMissingData)
		assert.Contains(t, err.Error(), "Validation errors")
		assert.Nil(t, store.GetState().GetOrder())
	})

	t.Run("Timeout applies to the backend call", func(t *testing.T) {
		svc, _, store := newService(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.SubmitOrder(ctx, checkout.OrderRequest{}, checkout.RequestOptions{Timeout: time.Second})
		require.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, store.GetState().GetOrder())
	})
}

func TestService_LoadPaymentMethod(t *testing.T) {
	svc, _, _ := newService(t)

	state, err := svc.LoadPaymentMethod(context.Background(), "klarna")
	require.NoError(t, err)
	method, ok := state.GetPaymentMethod("klarna")
	require.True(t, ok)
	assert.Equal(t, "ct_1", method.ClientToken)

	_, err = svc.LoadPaymentMethod(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrPaymentMethodNotFound)
}

func TestService_OffsiteFlow(t *testing.T) {
	svc, client, _ := newService(t)
	ctx := context.Background()
	opts := checkout.RequestOptions{}

	t.Run("Hand-off without order", func(t *testing.T) {
		_, err := svc.InitializeOffsitePayment(ctx, checkout.Payment{Name: "adyen", Gateway: "adyen"}, false, opts)
		require.ErrorIs(t, err, strategy.ErrMissingData)
	})

	state, err := svc.SubmitOrder(ctx, checkout.OrderRequest{UseStoreCredit: true}, opts)
	require.NoError(t, err)
	orderID := state.GetOrder().OrderID

	state, err = svc.InitializeOffsitePayment(ctx, checkout.Payment{Name: "adyen", Gateway: "adyen"}, true, opts)
	require.NoError(t, err)
	assert.Equal(t, checkout.PaymentStatusPending, state.GetOrder().Payment.Status)
	assert.Equal(t, "https://pay.example/redirect/adyen/"+orderID, state.GetOrder().Payment.RedirectURL)

	_, err = svc.FinalizeOrder(ctx, orderID, opts)
	require.ErrorIs(t, err, ErrOrderNotAcknowledged)

	_, err = client.AcknowledgePayment(orderID)
	require.NoError(t, err)
	state, err = svc.SyncOrder(ctx, orderID, opts)
	require.NoError(t, err)
	assert.Equal(t, checkout.PaymentStatusAcknowledge, state.GetOrder().Payment.Status)

	state, err = svc.FinalizeOrder(ctx, orderID, opts)
	require.NoError(t, err)
	assert.Equal(t, checkout.PaymentStatusFinalize, state.GetOrder().Payment.Status)

	submitted, ok := client.SubmittedRequest(orderID)
	require.True(t, ok)
	assert.Nil(t, submitted.Payment, "hand-off does not rewrite the placed order")
	assert.True(t, submitted.UseStoreCredit)

	handedOff, ok := client.OffsitePayment(orderID)
	require.True(t, ok)
	assert.Equal(t, "adyen", handedOff.Gateway)
}

func TestService_BackendFailureKeepsState(t *testing.T) {
	svc, _, store := newService(t)
	_, err := svc.SyncOrder(context.Background(), "missing", checkout.RequestOptions{})
	require.True(t, errors.Is(err, ErrOrderNotFound))
	assert.Nil(t, store.GetState().GetOrder())
}

func TestNewService_PanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewService(nil, NewMemoryClient(""), nil, nil) })
	assert.Panics(t, func() { NewService(checkout.NewMemoryStore(checkout.State{}), nil, nil, nil) })
}
