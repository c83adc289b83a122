package placeorder

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/checkout-payments/internal/checkout"
)

var (
	// ErrPaymentMethodNotFound is returned for an unknown payment method id.
	ErrPaymentMethodNotFound = errors.New("payment method not found")
	// ErrOrderNotFound is returned for an unknown order id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotAcknowledged is returned when finalizing an order whose payment
	// the provider has not acknowledged.
	ErrOrderNotAcknowledged = errors.New("order payment not acknowledged")
)

// Client is the checkout backend the Service talks to.
type Client interface {
	SubmitOrder(ctx context.Context, req checkout.OrderRequest) (checkout.Order, error)
	GetPaymentMethod(ctx context.Context, methodID string) (checkout.PaymentMethod, error)
	GetOrder(ctx context.Context, orderID string) (checkout.Order, error)
	FinalizeOrder(ctx context.Context, orderID string) (checkout.Order, error)
	InitializeOffsitePayment(ctx context.Context, orderID string, payment checkout.Payment, useStoreCredit bool) (checkout.Order, error)
}

type storedOrder struct {
	order   checkout.Order
	request checkout.OrderRequest
	offsite *checkout.Payment
}

// MemoryClient is an in-memory checkout backend.
type MemoryClient struct {
	mu           sync.Mutex
	methods      map[string]checkout.PaymentMethod
	orders       map[string]*storedOrder
	redirectBase string
	now          func() time.Time
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient creates a backend offering methods. Off-site payments
// redirect to paths under redirectBase.
func NewMemoryClient(redirectBase string, methods ...checkout.PaymentMethod) *MemoryClient {
	c := &MemoryClient{
		methods:      make(map[string]checkout.PaymentMethod, len(methods)),
		orders:       make(map[string]*storedOrder),
		redirectBase: redirectBase,
		now:          time.Now,
	}
	for _, m := range methods {
		c.methods[m.ID] = m
	}
	return c
}

// PutPaymentMethod adds or replaces a payment method.
func (c *MemoryClient) PutPaymentMethod(m checkout.PaymentMethod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[m.ID] = m
}

// SubmitOrder creates an order for req.
func (c *MemoryClient) SubmitOrder(ctx context.Context, req checkout.OrderRequest) (checkout.Order, error) {
	if err := ctx.Err(); err != nil {
		return checkout.Order{}, err
	}
	order := checkout.Order{
		OrderID:   uuid.NewString(),
		CreatedAt: c.now().UTC(),
	}
	if req.Payment != nil {
		order.Payment = checkout.OrderPayment{ID: uuid.NewString(), Status: checkout.PaymentStatusInitialize}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[order.OrderID] = &storedOrder{order: order, request: req.Clone()}
	return order, nil
}

// GetPaymentMethod returns the method registered under methodID.
func (c *MemoryClient) GetPaymentMethod(ctx context.Context, methodID string) (checkout.PaymentMethod, error) {
	if err := ctx.Err(); err != nil {
		return checkout.PaymentMethod{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.methods[methodID]
	if !ok {
		return checkout.PaymentMethod{}, fmt.Errorf("%w: %s", ErrPaymentMethodNotFound, methodID)
	}
	m.Config = maps.Clone(m.Config)
	return m, nil
}

// GetOrder returns the order stored under orderID.
func (c *MemoryClient) GetOrder(ctx context.Context, orderID string) (checkout.Order, error) {
	if err := ctx.Err(); err != nil {
		return checkout.Order{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.orders[orderID]
	if !ok {
		return checkout.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return stored.order, nil
}

// InitializeOffsitePayment attaches payment to the order and hands out a
// redirect URL. The payment stays PENDING until acknowledged.
func (c *MemoryClient) InitializeOffsitePayment(ctx context.Context, orderID string, payment checkout.Payment, useStoreCredit bool) (checkout.Order, error) {
	if err := ctx.Err(); err != nil {
		return checkout.Order{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.orders[orderID]
	if !ok {
		return checkout.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	stored.offsite = checkout.OrderRequest{Payment: &payment}.Clone().Payment
	stored.request.UseStoreCredit = useStoreCredit
	stored.order.Payment = checkout.OrderPayment{
		ID:          uuid.NewString(),
		Status:      checkout.PaymentStatusPending,
		RedirectURL: c.redirectBase + "/" + url.PathEscape(payment.Gateway) + "/" + url.PathEscape(orderID),
	}
	return stored.order, nil
}

// AcknowledgePayment marks the order's payment as acknowledged by the provider.
func (c *MemoryClient) AcknowledgePayment(orderID string) (checkout.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.orders[orderID]
	if !ok {
		return checkout.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	stored.order.Payment.Status = checkout.PaymentStatusAcknowledge
	return stored.order, nil
}

// FinalizeOrder completes an acknowledged order.
func (c *MemoryClient) FinalizeOrder(ctx context.Context, orderID string) (checkout.Order, error) {
	if err := ctx.Err(); err != nil {
		return checkout.Order{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.orders[orderID]
	if !ok {
		return checkout.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	switch stored.order.Payment.Status {
	case checkout.PaymentStatusAcknowledge, checkout.PaymentStatusFinalize:
		stored.order.Payment.Status = checkout.PaymentStatusFinalize
		return stored.order, nil
	default:
		return checkout.Order{}, fmt.Errorf("%w: %s is %q", ErrOrderNotAcknowledged, orderID, stored.order.Payment.Status)
	}
}

// SubmittedRequest returns the request the order was placed with. An
// off-site hand-off only updates its store credit flag.
func (c *MemoryClient) SubmittedRequest(orderID string) (checkout.OrderRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.orders[orderID]
	if !ok {
		return checkout.OrderRequest{}, false
	}
	return stored.request.Clone(), true
}

// OffsitePayment returns the payment handed off for orderID, if any.
func (c *MemoryClient) OffsitePayment(orderID string) (checkout.Payment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.orders[orderID]
	if !ok || stored.offsite == nil {
		return checkout.Payment{}, false
	}
	return *checkout.OrderRequest{Payment: stored.offsite}.Clone().Payment, true
}
