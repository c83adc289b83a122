// Package checkout holds the checkout data model shared by payment strategies
// and the collaborators they call: order requests, payment methods, the
// read-only state snapshot, and the store that owns that snapshot.
package checkout

import (
	"context"
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// Payment status values reported by the checkout backend for an order payment.
const (
	PaymentStatusInitialize  = "INITIALIZE"
	PaymentStatusAcknowledge = "ACKNOWLEDGE"
	PaymentStatusFinalize    = "FINALIZE"
	PaymentStatusDeclined    = "DECLINED"
	PaymentStatusPending     = "PENDING"
)

// Payment describes which provider pays for the order and with what data.
type Payment struct {
	Name        string         `json:"name"`
	Gateway     string         `json:"gateway,omitempty"`
	PaymentData map[string]any `json:"paymentData,omitempty"`
}

// OrderRequest is the payload a shopper submits to place an order.
// Derivation helpers return copies; the receiver is never modified.
type OrderRequest struct {
	Payment         *Payment `json:"payment,omitempty"`
	UseStoreCredit  bool     `json:"useStoreCredit"`
	CustomerMessage string   `json:"customerMessage,omitempty"`
}

// Clone returns a deep copy of the request.
func (r OrderRequest) Clone() OrderRequest {
	out := r
	if r.Payment != nil {
		p := *r.Payment
		if r.Payment.PaymentData != nil {
			p.PaymentData = maps.Clone(r.Payment.PaymentData)
		}
		out.Payment = &p
	}
	return out
}

// WithoutPaymentData returns a copy whose payment section carries no payment data.
func (r OrderRequest) WithoutPaymentData() OrderRequest {
	out := r.Clone()
	if out.Payment != nil {
		out.Payment.PaymentData = nil
	}
	return out
}

// WithoutPayment returns a copy with the payment section removed.
func (r OrderRequest) WithoutPayment() OrderRequest {
	out := r.Clone()
	out.Payment = nil
	return out
}

// WithStoreCredit returns a copy with the store credit flag set to use.
func (r OrderRequest) WithStoreCredit(use bool) OrderRequest {
	out := r.Clone()
	out.UseStoreCredit = use
	return out
}

// PaymentMethod is a configured provider instance available at checkout.
type PaymentMethod struct {
	ID          string            `json:"id"`
	Gateway     string            `json:"gateway,omitempty"`
	Method      string            `json:"method,omitempty"`
	ClientToken string            `json:"clientToken,omitempty"`
	Config      map[string]string `json:"config,omitempty"`
}

// OrderPayment is the payment attached to a placed order.
type OrderPayment struct {
	ID          string `json:"id,omitempty"`
	Status      string `json:"status,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Order is an order created by the checkout backend.
type Order struct {
	OrderID   string       `json:"orderId"`
	Payment   OrderPayment `json:"payment"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Cart is the shopper's cart as priced by the backend.
type Cart struct {
	ID         string          `json:"id"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
	Currency   string          `json:"currency"`
}

// RemotePayment records a provider token registered against the checkout.
type RemotePayment struct {
	MethodName         string    `json:"methodName"`
	AuthorizationToken string    `json:"authorizationToken"`
	InitializedAt      time.Time `json:"initializedAt"`
}

// RequestOptions are forwarded to every collaborator call.
type RequestOptions struct {
	Timeout  time.Duration     `json:"-"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WithTimeout derives a context bounded by o.Timeout. A zero timeout only
// adds cancellation.
func (o RequestOptions) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout > 0 {
		return context.WithTimeout(ctx, o.Timeout)
	}
	return context.WithCancel(ctx)
}
