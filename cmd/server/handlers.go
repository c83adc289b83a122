package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/placeorder"
	"github.com/yourorg/checkout-payments/internal/processor"
	"github.com/yourorg/checkout-payments/internal/strategy"
)

// api serves the checkout payment endpoints.
type api struct {
	proc           *processor.Processor
	store          checkout.Store
	orders         *placeorder.Service
	backend        *placeorder.MemoryClient
	logger         *zap.Logger
	requestTimeout time.Duration
}

type initializeRequest struct {
	Container string `json:"container"`
	Gateway   string `json:"gateway"`
}

type cartRequest struct {
	GrandTotal decimal.Decimal `json:"grandTotal"`
	Currency   string          `json:"currency"`
}

func setupRouter(a *api, serviceName string, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = allowedOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.GET("/checkout", a.getCheckout)
	v1.PUT("/cart", a.updateCart)
	v1.POST("/payment-methods/:methodId/initialize", a.initialize)
	v1.POST("/payment-methods/:methodId/finalize", a.finalize)
	v1.POST("/payment-methods/:methodId/deinitialize", a.deinitialize)
	v1.POST("/orders", a.execute)
	v1.POST("/orders/:orderId/acknowledge", a.acknowledge)
	return router
}

func (a *api) requestOptions(c *gin.Context) checkout.RequestOptions {
	opts := checkout.RequestOptions{Timeout: a.requestTimeout}
	if id := c.GetHeader("X-Request-ID"); id != "" {
		opts.Metadata = map[string]string{"requestId": id}
	}
	return opts
}

func (a *api) getCheckout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": a.store.GetState()})
}

func (a *api) updateCart(c *gin.Context) {
	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if req.GrandTotal.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed: grandTotal must not be negative"})
		return
	}

	state, err := a.store.Dispatch(c.Request.Context(), checkout.Replace(func(s checkout.State) checkout.State {
		cart := checkout.Cart{GrandTotal: req.GrandTotal, Currency: req.Currency}
		if current := s.GetCart(); current != nil {
			cart.ID = current.ID
			if cart.Currency == "" {
				cart.Currency = current.Currency
			}
		}
		return s.WithCart(cart)
	}))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (a *api) initialize(c *gin.Context) {
	var req initializeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}
	}

	var (
		mu     sync.Mutex
		loaded *strategy.LoadResponse
	)
	opts := strategy.InitializeOptions{
		MethodID: c.Param("methodId"),
		Gateway:  req.Gateway,
		Request:  a.requestOptions(c),
	}
	if req.Container != "" {
		opts.Widget = &strategy.WidgetOptions{
			Container: req.Container,
			LoadCallback: func(res strategy.LoadResponse) {
				mu.Lock()
				loaded = &res
				mu.Unlock()
			},
		}
	}

	state, err := a.proc.Initialize(c.Request.Context(), opts)
	if err != nil {
		a.writeError(c, err)
		return
	}

	body := gin.H{"state": state}
	mu.Lock()
	if loaded != nil {
		body["widget"] = loaded
	}
	mu.Unlock()
	c.JSON(http.StatusOK, body)
}

func (a *api) execute(c *gin.Context) {
	var payload checkout.OrderRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	state, err := a.proc.Execute(c.Request.Context(), payload, a.requestOptions(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (a *api) finalize(c *gin.Context) {
	state, err := a.proc.Finalize(c.Request.Context(), c.Param("methodId"), a.requestOptions(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (a *api) deinitialize(c *gin.Context) {
	state, err := a.proc.Deinitialize(c.Request.Context(), c.Param("methodId"), a.requestOptions(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// acknowledge stands in for the provider's out-of-band notification.
func (a *api) acknowledge(c *gin.Context) {
	orderID := c.Param("orderId")
	if _, err := a.backend.AcknowledgePayment(orderID); err != nil {
		a.writeError(c, err)
		return
	}
	state, err := a.orders.SyncOrder(c.Request.Context(), orderID, a.requestOptions(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (a *api) writeError(c *gin.Context, err error) {
	var rejection *strategy.RejectionError
	switch {
	case errors.As(err, &rejection):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":    err.Error(),
			"provider": rejection.Provider,
			"result":   rejection.Result,
		})
		return
	case errors.Is(err, strategy.ErrMissingData):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, strategy.ErrNotInitialized):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, strategy.ErrStrategyNotFound),
		errors.Is(err, placeorder.ErrOrderNotFound),
		errors.Is(err, placeorder.ErrPaymentMethodNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, placeorder.ErrOrderNotAcknowledged):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		a.logger.Error("request_failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
