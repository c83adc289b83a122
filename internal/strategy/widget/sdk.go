package widget

import (
	"context"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/remotecheckout"
	"github.com/yourorg/checkout-payments/internal/strategy"
)

// InitOptions configure the provider SDK for one checkout attempt.
type InitOptions struct {
	ClientToken string `json:"client_token"`
}

// LoadOptions tell the SDK where to render its widget.
type LoadOptions struct {
	Container string `json:"container"`
}

// AuthorizeOptions are passed through to the provider's authorize call.
type AuthorizeOptions struct {
	PaymentMethodCategory string `json:"payment_method_category,omitempty"`
}

// ResponseError is the provider's description of a failed widget interaction.
type ResponseError struct {
	InvalidFields []string `json:"invalid_fields,omitempty"`
}

// AuthorizationResponse is the provider's answer to an authorize request.
type AuthorizationResponse struct {
	Approved           bool           `json:"approved"`
	ShowForm           bool           `json:"show_form"`
	AuthorizationToken string         `json:"authorization_token,omitempty"`
	FinalizeRequired   bool           `json:"finalize_required,omitempty"`
	Error              *ResponseError `json:"error,omitempty"`
}

// AuthorizeCallback receives the provider's authorization answer.
type AuthorizeCallback func(AuthorizationResponse)

// SDK is the client-side provider API the strategy drives. Load and Authorize
// return an error only when the provider could not be reached; provider
// answers arrive through the callbacks.
type SDK interface {
	Init(opts InitOptions)
	Load(ctx context.Context, opts LoadOptions, callback strategy.LoadCallback) error
	Authorize(ctx context.Context, opts AuthorizeOptions, callback AuthorizeCallback) error
}

// ScriptLoader acquires the provider SDK.
type ScriptLoader interface {
	Load(ctx context.Context) (SDK, error)
}

// PaymentInitializer creates the store action that registers a provider
// authorization token against the checkout.
type PaymentInitializer interface {
	InitializePayment(methodName string, payload remotecheckout.PaymentPayload) checkout.Action
}
