package klarna

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/yourorg/checkout-payments/internal/strategy"
	"github.com/yourorg/checkout-payments/internal/strategy/widget"
)

// ErrNotInitialized is returned by Load and Authorize before Init.
var ErrNotInitialized = errors.New("klarna: sdk used before init")

// Loader acquires the Klarna SDK once the API is reachable.
type Loader struct {
	client *Client
}

var _ widget.ScriptLoader = (*Loader)(nil)

// NewLoader creates a Loader using client.
func NewLoader(client *Client) *Loader {
	if client == nil {
		panic("klarna client cannot be nil")
	}
	return &Loader{client: client}
}

// Load checks the SDK endpoint and returns a fresh SDK handle.
func (l *Loader) Load(ctx context.Context) (widget.SDK, error) {
	if err := l.client.do(ctx, http.MethodGet, sdkPath, nil, nil); err != nil {
		return nil, err
	}
	return &SDK{client: l.client}, nil
}

// SDK is the Klarna widget SDK for one checkout.
type SDK struct {
	client *Client

	mu          sync.Mutex
	clientToken string
}

var _ widget.SDK = (*SDK)(nil)

type widgetRequest struct {
	ClientToken string `json:"client_token"`
	Container   string `json:"container"`
}

type widgetResponse struct {
	ShowForm bool                  `json:"show_form"`
	Error    *widget.ResponseError `json:"error,omitempty"`
}

type authorizationRequest struct {
	ClientToken           string `json:"client_token"`
	PaymentMethodCategory string `json:"payment_method_category,omitempty"`
}

// Init sets the client token used by later calls.
func (s *SDK) Init(opts widget.InitOptions) {
	s.mu.Lock()
	s.clientToken = opts.ClientToken
	s.mu.Unlock()
}

func (s *SDK) token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clientToken == "" {
		return "", ErrNotInitialized
	}
	return s.clientToken, nil
}

// Load renders the widget into opts.Container and reports the outcome to callback.
func (s *SDK) Load(ctx context.Context, opts widget.LoadOptions, callback strategy.LoadCallback) error {
	token, err := s.token()
	if err != nil {
		return err
	}
	var res widgetResponse
	if err := s.client.do(ctx, http.MethodPost, widgetsPath, widgetRequest{ClientToken: token, Container: opts.Container}, &res); err != nil {
		return err
	}
	if callback != nil {
		out := strategy.LoadResponse{ShowForm: res.ShowForm}
		if res.Error != nil && len(res.Error.InvalidFields) > 0 {
			out.Error = "invalid fields: " + strings.Join(res.Error.InvalidFields, ", ")
		}
		callback(out)
	}
	return nil
}

// Authorize asks Klarna to authorize the shopper and hands the answer to callback.
// A declined authorization is an answer, not an error.
func (s *SDK) Authorize(ctx context.Context, opts widget.AuthorizeOptions, callback widget.AuthorizeCallback) error {
	token, err := s.token()
	if err != nil {
		return err
	}
	var res widget.AuthorizationResponse
	req := authorizationRequest{ClientToken: token, PaymentMethodCategory: opts.PaymentMethodCategory}
	if err := s.client.do(ctx, http.MethodPost, authorizationsPath, req, &res); err != nil {
		return err
	}
	callback(res)
	return nil
}
