// Package remotecheckout registers provider-issued tokens against the
// in-progress checkout on the remote checkout system.
package remotecheckout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/checkout-payments/internal/checkout"
)

// PaymentPayload is what the remote checkout needs to take over a provider payment.
type PaymentPayload struct {
	AuthorizationToken string `json:"authorizationToken"`
}

// Requester talks to the remote checkout system.
type Requester interface {
	InitializePayment(ctx context.Context, methodName string, payload PaymentPayload) error
}

// ActionCreator builds store actions for remote checkout operations.
type ActionCreator struct {
	requester Requester
	now       func() time.Time
}

// NewActionCreator creates an ActionCreator backed by requester.
func NewActionCreator(requester Requester) *ActionCreator {
	if requester == nil {
		panic("remote checkout requester cannot be nil")
	}
	return &ActionCreator{requester: requester, now: time.Now}
}

// InitializePayment returns an action that registers payload for methodName
// and records it in the checkout state.
func (a *ActionCreator) InitializePayment(methodName string, payload PaymentPayload) checkout.Action {
	return func(ctx context.Context, current checkout.State) (checkout.State, error) {
		if err := a.requester.InitializePayment(ctx, methodName, payload); err != nil {
			return current, err
		}
		return current.WithRemotePayment(checkout.RemotePayment{
			MethodName:         methodName,
			AuthorizationToken: payload.AuthorizationToken,
			InitializedAt:      a.now().UTC(),
		}), nil
	}
}

// HTTPRequester posts remote checkout requests as JSON.
type HTTPRequester struct {
	httpClient *http.Client
	baseURL    string
}

var _ Requester = (*HTTPRequester)(nil)

// NewHTTPRequester creates a requester for baseURL. A nil client gets a traced default.
func NewHTTPRequester(baseURL string, client *http.Client) *HTTPRequester {
	if client == nil {
		client = &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &HTTPRequester{httpClient: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// InitializePayment implements Requester.
func (r *HTTPRequester) InitializePayment(ctx context.Context, methodName string, payload PaymentPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("remotecheckout: encode payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/remote-checkout/%s/payment", r.baseURL, url.PathEscape(methodName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("remotecheckout: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remotecheckout: initialize payment for %s: %w", methodName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remotecheckout: initialize payment for %s: HTTP %d: %s", methodName, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
