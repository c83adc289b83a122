package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/events"
	"github.com/yourorg/checkout-payments/internal/placeorder"
	"github.com/yourorg/checkout-payments/internal/processor"
	"github.com/yourorg/checkout-payments/internal/provider/klarna"
	"github.com/yourorg/checkout-payments/internal/remotecheckout"
	"github.com/yourorg/checkout-payments/internal/strategy"
	strategymock "github.com/yourorg/checkout-payments/internal/strategy/mock"
	"github.com/yourorg/checkout-payments/internal/strategy/offsite"
	"github.com/yourorg/checkout-payments/internal/strategy/widget"
)

type testServer struct {
	router  *gin.Engine
	store   *checkout.MemoryStore
	backend *placeorder.MemoryClient
	mock    *strategymock.MockStrategy
	klarna  *fakeKlarna
	remote  *fakeRemoteCheckout
}

// fakeKlarna serves the Klarna payments endpoints the SDK calls.
type fakeKlarna struct {
	mu          sync.Mutex
	widgetLoads int
	authorized  int
}

func (k *fakeKlarna) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch r.URL.Path {
	case "/payments/v1/sdk":
		w.WriteHeader(http.StatusNoContent)
	case "/payments/v1/widgets":
		k.widgetLoads++
		_ = json.NewEncoder(w).Encode(gin.H{"show_form": true})
	case "/payments/v1/authorizations":
		k.authorized++
		_ = json.NewEncoder(w).Encode(gin.H{"approved": true, "show_form": true, "authorization_token": "tok_klarna"})
	default:
		http.NotFound(w, r)
	}
}

func (k *fakeKlarna) loads() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.widgetLoads
}

// fakeRemoteCheckout records the tokens registered against the checkout.
type fakeRemoteCheckout struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (f *fakeRemoteCheckout) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload remotecheckout.PaymentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.tokens[r.URL.Path] = payload.AuthorizationToken
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeRemoteCheckout) token(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[path]
}

// setupTestRouter wires real strategies behind the HTTP API: the widget
// strategy for "klarna" (against fake Klarna and remote checkout servers),
// offsite strategies for "adyen" and "paypal", and a mock for "mock".
func setupTestRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	klarnaAPI := &fakeKlarna{}
	klarnaServer := httptest.NewServer(klarnaAPI)
	t.Cleanup(klarnaServer.Close)
	remote := &fakeRemoteCheckout{tokens: make(map[string]string)}
	remoteServer := httptest.NewServer(remote)
	t.Cleanup(remoteServer.Close)

	store := checkout.NewMemoryStore(checkout.State{}.WithCart(checkout.Cart{
		ID:         "cart-1",
		GrandTotal: decimal.RequireFromString("100.00"),
		Currency:   "USD",
	}))
	backend := placeorder.NewMemoryClient("https://pay.test/redirect",
		checkout.PaymentMethod{ID: "klarna", Gateway: "klarna", Method: "pay_later", ClientToken: "ct_test"},
		checkout.PaymentMethod{ID: "adyen", Gateway: "adyen", Method: "scheme"},
		checkout.PaymentMethod{ID: "paypal", Gateway: "paypal", Method: "paypal"},
	)
	contract, err := newOrderContract("")
	require.NoError(t, err)
	orders := placeorder.NewService(store, backend, contract, zap.NewNop())

	loader := klarna.NewLoader(klarna.NewClient(klarna.Config{BaseURL: klarnaServer.URL, RetryAttempts: -1}, klarnaServer.Client(), zap.NewNop()))
	initializer := remotecheckout.NewActionCreator(remotecheckout.NewHTTPRequester(remoteServer.URL, remoteServer.Client()))
	retention := offsite.GatewayRetention{"adyen"}

	mock := strategymock.NewMockStrategy("mock")
	registry := strategy.NewRegistry()
	registry.Register("klarna", widget.NewStrategy("klarna", store, orders, initializer, loader, zap.NewNop()))
	registry.Register("adyen", offsite.NewStrategy("adyen", store, orders, retention))
	registry.Register("paypal", offsite.NewStrategy("paypal", store, orders, retention))
	registry.Register("mock", mock)

	a := &api{
		proc:           processor.NewProcessor(registry, store, events.NopPublisher{}, zap.NewNop()),
		store:          store,
		orders:         orders,
		backend:        backend,
		logger:         zap.NewNop(),
		requestTimeout: 5 * time.Second,
	}
	return &testServer{
		router:  setupRouter(a, "checkout-payments-test", []string{"*"}),
		store:   store,
		backend: backend,
		mock:    mock,
		klarna:  klarnaAPI,
		remote:  remote,
	}
}

type stateResponse struct {
	State  checkout.State         `json:"state"`
	Widget *strategy.LoadResponse `json:"widget"`
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err, "Failed to marshal payload")
		buf = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(t, err, "Failed to create request")
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	var res stateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), "Failed to unmarshal response body")
	return res
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var errorResponse gin.H
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errorResponse), "Failed to unmarshal error response")
	msg, _ := errorResponse["error"].(string)
	return msg
}

func TestHealthz(t *testing.T) {
	s := setupTestRouter(t)
	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestRouter(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/payment-methods/mock/initialize", nil).Code)

	w := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "checkout_strategy_operations_total")
}

func TestOffsitePaymentFlow(t *testing.T) {
	s := setupTestRouter(t)

	w := s.do(t, http.MethodPost, "/v1/payment-methods/adyen/initialize", map[string]any{"gateway": "adyen"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/v1/orders", map[string]any{
		"payment": map[string]any{
			"name":        "adyen",
			"gateway":     "adyen",
			"paymentData": map[string]any{"encryptedCardNumber": "enc"},
		},
		"useStoreCredit": false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decodeState(t, w).State.Order
	require.NotNil(t, order)
	require.NotEmpty(t, order.OrderID)
	assert.Equal(t, checkout.PaymentStatusPending, order.Payment.Status)
	assert.True(t, strings.HasPrefix(order.Payment.RedirectURL, "https://pay.test/redirect/adyen/"))
	submitted, ok := s.backend.SubmittedRequest(order.OrderID)
	require.True(t, ok)
	require.NotNil(t, submitted.Payment, "adyen orders keep their payment")
	assert.Equal(t, "enc", submitted.Payment.PaymentData["encryptedCardNumber"])

	// Not acknowledged yet: finalize succeeds without completing the order.
	w = s.do(t, http.MethodPost, "/v1/payment-methods/adyen/finalize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, checkout.PaymentStatusPending, decodeState(t, w).State.Order.Payment.Status)

	w = s.do(t, http.MethodPost, "/v1/orders/"+order.OrderID+"/acknowledge", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, checkout.PaymentStatusAcknowledge, decodeState(t, w).State.Order.Payment.Status)

	w = s.do(t, http.MethodPost, "/v1/payment-methods/adyen/finalize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, checkout.PaymentStatusFinalize, decodeState(t, w).State.Order.Payment.Status)

	w = s.do(t, http.MethodPost, "/v1/payment-methods/adyen/deinitialize", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/v1/payment-methods/adyen/finalize", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInitialize_ReturnsWidgetLoadResponse(t *testing.T) {
	s := setupTestRouter(t)
	s.mock.InitializeFunc = func(_ context.Context, opts strategy.InitializeOptions) (checkout.State, error) {
		require.NotNil(t, opts.Widget)
		assert.Equal(t, "#klarna-container", opts.Widget.Container)
		assert.Equal(t, 5*time.Second, opts.Request.Timeout)
		opts.Widget.LoadCallback(strategy.LoadResponse{ShowForm: true})
		return s.store.GetState(), nil
	}

	w := s.do(t, http.MethodPost, "/v1/payment-methods/mock/initialize", map[string]any{"container": "#klarna-container"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeState(t, w)
	require.NotNil(t, res.Widget)
	assert.True(t, res.Widget.ShowForm)
}

func TestErrorMapping(t *testing.T) {
	validOrder := map[string]any{
		"payment":        map[string]any{"name": "mock"},
		"useStoreCredit": false,
	}

	testCases := []struct {
		name       string
		method     string
		path       string
		body       any
		executeErr error
		wantStatus int
		wantError  string
	}{
		{
			name:       "Malformed JSON",
			method:     http.MethodPost,
			path:       "/v1/orders",
			body:       `{"payment":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request format",
		},
		{
			name:       "Missing payment name",
			method:     http.MethodPost,
			path:       "/v1/orders",
			body:       map[string]any{"useStoreCredit": false},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "payload.payment.name",
		},
		{
			name:       "Unknown payment method",
			method:     http.MethodPost,
			path:       "/v1/payment-methods/nope/initialize",
			wantStatus: http.StatusNotFound,
			wantError:  "strategy not found",
		},
		{
			name:       "Strategy not initialized",
			method:     http.MethodPost,
			path:       "/v1/orders",
			body:       validOrder,
			executeErr: &strategy.NotInitializedError{Strategy: "mock"},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "Provider rejection",
			method:     http.MethodPost,
			path:       "/v1/orders",
			body:       validOrder,
			executeErr: &strategy.RejectionError{Provider: "mock", Result: map[string]any{"approved": false}},
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name:       "Deadline exceeded",
			method:     http.MethodPost,
			path:       "/v1/orders",
			body:       validOrder,
			executeErr: context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "Upstream failure",
			method:     http.MethodPost,
			path:       "/v1/orders",
			body:       validOrder,
			executeErr: errors.New("backend unavailable"),
			wantStatus: http.StatusBadGateway,
			wantError:  "backend unavailable",
		},
		{
			name:       "Acknowledge unknown order",
			method:     http.MethodPost,
			path:       "/v1/orders/missing/acknowledge",
			wantStatus: http.StatusNotFound,
			wantError:  "order not found",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := setupTestRouter(t)
			if tc.executeErr != nil {
				execErr := tc.executeErr
				s.mock.ExecuteFunc = func(context.Context, checkout.OrderRequest, checkout.RequestOptions) (checkout.State, error) {
					return s.store.GetState(), execErr
				}
			}

			w := s.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			if tc.wantError != "" {
				assert.Contains(t, errorMessage(t, w), tc.wantError)
			}
		})
	}
}

func TestRejectionCarriesProviderResult(t *testing.T) {
	s := setupTestRouter(t)
	s.mock.ExecuteFunc = func(context.Context, checkout.OrderRequest, checkout.RequestOptions) (checkout.State, error) {
		return s.store.GetState(), &strategy.RejectionError{Provider: "mock", Result: map[string]any{"approved": false, "show_form": true}}
	}

	w := s.do(t, http.MethodPost, "/v1/orders", map[string]any{"payment": map[string]any{"name": "mock"}, "useStoreCredit": false})
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body struct {
		Provider string         `json:"provider"`
		Result   map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "mock", body.Provider)
	assert.Equal(t, false, body.Result["approved"])
	assert.Equal(t, true, body.Result["show_form"])
}

func TestUpdateCart(t *testing.T) {
	s := setupTestRouter(t)

	w := s.do(t, http.MethodPut, "/v1/cart", map[string]any{"grandTotal": "80.50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cart := decodeState(t, w).State.Cart
	require.NotNil(t, cart)
	assert.True(t, decimal.RequireFromString("80.5").Equal(cart.GrandTotal))
	assert.Equal(t, "USD", cart.Currency)
	assert.Equal(t, "cart-1", cart.ID)

	w = s.do(t, http.MethodPut, "/v1/cart", map[string]any{"grandTotal": "-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/v1/checkout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decimal.RequireFromString("80.5").Equal(decodeState(t, w).State.Cart.GrandTotal))
}

func TestWidgetPaymentFlow(t *testing.T) {
	s := setupTestRouter(t)

	w := s.do(t, http.MethodPost, "/v1/payment-methods/klarna/initialize", map[string]any{"container": "#klarna-payments"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeState(t, w)
	require.NotNil(t, res.Widget)
	assert.True(t, res.Widget.ShowForm)
	require.Equal(t, 1, s.klarna.loads())

	t.Run("Unchanged grand total keeps the widget", func(t *testing.T) {
		w := s.do(t, http.MethodPut, "/v1/cart", map[string]any{"grandTotal": "100"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 1, s.klarna.loads())
	})

	t.Run("New grand total re-renders the widget", func(t *testing.T) {
		w := s.do(t, http.MethodPut, "/v1/cart", map[string]any{"grandTotal": "85.50"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 2, s.klarna.loads())
	})

	t.Run("Execute registers the token and submits without payment data", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/v1/orders", map[string]any{
			"payment": map[string]any{
				"name":        "klarna",
				"gateway":     "klarna",
				"paymentData": map[string]any{"nonce": "abc"},
			},
			"useStoreCredit": true,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		state := decodeState(t, w).State

		assert.Equal(t, "tok_klarna", s.remote.token("/remote-checkout/klarna/payment"))
		require.Contains(t, state.RemotePayments, "klarna")
		assert.Equal(t, "tok_klarna", state.RemotePayments["klarna"].AuthorizationToken)

		require.NotNil(t, state.Order)
		submitted, ok := s.backend.SubmittedRequest(state.Order.OrderID)
		require.True(t, ok)
		require.NotNil(t, submitted.Payment)
		assert.Equal(t, "klarna", submitted.Payment.Name)
		assert.Nil(t, submitted.Payment.PaymentData)
		assert.False(t, submitted.UseStoreCredit)
	})

	t.Run("No re-render after deinitialize", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/v1/payment-methods/klarna/deinitialize", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, http.MethodPut, "/v1/cart", map[string]any{"grandTotal": "60"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 2, s.klarna.loads())
	})
}

func TestOffsitePayment_DropsPaymentForOtherGateways(t *testing.T) {
	s := setupTestRouter(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/payment-methods/paypal/initialize", nil).Code)

	w := s.do(t, http.MethodPost, "/v1/orders", map[string]any{
		"payment":        map[string]any{"name": "paypal", "gateway": "paypal", "paymentData": map[string]any{"k": "v"}},
		"useStoreCredit": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decodeState(t, w).State.Order
	require.NotNil(t, order)
	assert.Equal(t, checkout.PaymentStatusPending, order.Payment.Status)
	assert.True(t, strings.HasPrefix(order.Payment.RedirectURL, "https://pay.test/redirect/paypal/"))

	submitted, ok := s.backend.SubmittedRequest(order.OrderID)
	require.True(t, ok)
	assert.Nil(t, submitted.Payment, "only adyen orders are placed with their payment")
	assert.True(t, submitted.UseStoreCredit)

	handedOff, ok := s.backend.OffsitePayment(order.OrderID)
	require.True(t, ok)
	assert.Equal(t, "paypal", handedOff.Name)
	assert.Equal(t, map[string]any{"k": "v"}, handedOff.PaymentData)
}

func TestNewOrderContract(t *testing.T) {
	t.Run("Built-in schema", func(t *testing.T) {
		contract, err := newOrderContract("")
		require.NoError(t, err)
		assert.Error(t, contract.ValidateOrder(checkout.OrderRequest{Payment: &checkout.Payment{}}))
	})

	t.Run("Schema file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "order.json")
		schema := `{"type": "object", "required": ["customerMessage"]}`
		require.NoError(t, os.WriteFile(path, []byte(schema), 0o600))

		contract, err := newOrderContract(path)
		require.NoError(t, err)
		assert.Error(t, contract.ValidateOrder(checkout.OrderRequest{}))
		assert.NoError(t, contract.ValidateOrder(checkout.OrderRequest{CustomerMessage: "leave at door"}))
	})

	t.Run("Missing schema file", func(t *testing.T) {
		_, err := newOrderContract(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})
}
