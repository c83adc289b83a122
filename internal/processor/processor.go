// Package processor resolves the strategy for a payment method and runs its
// lifecycle calls with tracing, metrics, logging and event publication.
package processor

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yourorg/checkout-payments/internal/checkout"
	"github.com/yourorg/checkout-payments/internal/events"
	"github.com/yourorg/checkout-payments/internal/pkg/logging"
	"github.com/yourorg/checkout-payments/internal/strategy"
)

const tracerName = "github.com/yourorg/checkout-payments/internal/processor"

// Processor dispatches lifecycle calls to registered strategies.
type Processor struct {
	registry  *strategy.Registry
	store     checkout.Store
	publisher events.Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewProcessor creates a Processor. A nil publisher drops events.
func NewProcessor(registry *strategy.Registry, store checkout.Store, publisher events.Publisher, logger *zap.Logger) *Processor {
	if registry == nil {
		panic("strategy registry cannot be nil")
	}
	if store == nil {
		panic("checkout store cannot be nil")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		registry:  registry,
		store:     store,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "processor")),
		tracer:    otel.Tracer(tracerName),
	}
}

// Initialize initializes the strategy serving opts.MethodID.
func (p *Processor) Initialize(ctx context.Context, opts strategy.InitializeOptions) (checkout.State, error) {
	if opts.MethodID == "" {
		return p.store.GetState(), strategy.NewMissingDataError(`Unable to initialize payment because "methodId" argument is not provided.`)
	}
	return p.run(ctx, "initialize", opts.MethodID, opts.Gateway, func(ctx context.Context, s strategy.Strategy) (checkout.State, error) {
		return s.Initialize(ctx, opts)
	})
}

// Execute runs the strategy serving payload.Payment.Name and publishes
// payment.executed on success.
func (p *Processor) Execute(ctx context.Context, payload checkout.OrderRequest, opts checkout.RequestOptions) (checkout.State, error) {
	if payload.Payment == nil || payload.Payment.Name == "" {
		return p.store.GetState(), strategy.NewMissingDataError(`Unable to submit payment because "payload.payment.name" field is missing.`)
	}
	method, gateway := payload.Payment.Name, payload.Payment.Gateway
	state, err := p.run(ctx, "execute", method, gateway, func(ctx context.Context, s strategy.Strategy) (checkout.State, error) {
		return s.Execute(ctx, payload, opts)
	})
	if err == nil {
		p.publish(ctx, events.PaymentExecuted, method, gateway, state)
	}
	return state, err
}

// Finalize finalizes the order through the strategy serving methodID.
// payment.finalized is published only when this call moved the order into
// FINALIZE; a finalize that had nothing to complete publishes nothing.
func (p *Processor) Finalize(ctx context.Context, methodID string, opts checkout.RequestOptions) (checkout.State, error) {
	wasFinal := finalized(p.store.GetState())
	state, err := p.run(ctx, "finalize", methodID, "", func(ctx context.Context, s strategy.Strategy) (checkout.State, error) {
		return s.Finalize(ctx, opts)
	})
	if err == nil && !wasFinal && finalized(state) {
		p.publish(ctx, events.PaymentFinalized, methodID, "", state)
	}
	return state, err
}

func finalized(state checkout.State) bool {
	order := state.GetOrder()
	return order != nil && order.OrderID != "" && order.Payment.Status == checkout.PaymentStatusFinalize
}

// Deinitialize releases the strategy serving methodID.
func (p *Processor) Deinitialize(ctx context.Context, methodID string, opts checkout.RequestOptions) (checkout.State, error) {
	return p.run(ctx, "deinitialize", methodID, "", func(ctx context.Context, s strategy.Strategy) (checkout.State, error) {
		return s.Deinitialize(ctx, opts)
	})
}

// resolve looks methodID up in the checkout state, falling back to a bare
// method carrying gateway, and picks its strategy.
func (p *Processor) resolve(methodID, gateway string) (strategy.Strategy, checkout.PaymentMethod, error) {
	method, ok := p.store.GetState().GetPaymentMethod(methodID)
	if !ok {
		method = checkout.PaymentMethod{ID: methodID, Gateway: gateway}
	}
	s, err := p.registry.Get(method)
	return s, method, err
}

func (p *Processor) run(
	ctx context.Context,
	operation, methodID, gateway string,
	call func(ctx context.Context, s strategy.Strategy) (checkout.State, error),
) (state checkout.State, err error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "strategy."+operation, trace.WithAttributes(
		attribute.String("payment.method_id", methodID),
	))
	defer span.End()

	logger := logging.WithSpan(ctx, p.logger).With(
		zap.String("operation", operation),
		zap.String("method_id", methodID),
	)
	ctx = logging.ContextWithLogger(ctx, logger)

	defer func() {
		strategy.Observe(methodID, operation, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.logFailure(logger, operation, err)
			return
		}
		logger.Info("strategy_"+operation+"_succeeded", zap.Duration("duration", time.Since(start)))
	}()

	s, method, err := p.resolve(methodID, gateway)
	if err != nil {
		return p.store.GetState(), err
	}
	span.SetAttributes(attribute.String("payment.gateway", method.Gateway))

	return call(ctx, s)
}

func (p *Processor) logFailure(logger *zap.Logger, operation string, err error) {
	fields := []zap.Field{zap.String("outcome", strategy.Outcome(err)), zap.Error(err)}
	var rejection *strategy.RejectionError
	if errors.As(err, &rejection) {
		fields = append(fields, zap.String("provider", rejection.Provider))
		logger.Info("strategy_"+operation+"_rejected", fields...)
		return
	}
	logger.Warn("strategy_"+operation+"_failed", fields...)
}

// publish never fails the payment: the order is already placed.
func (p *Processor) publish(ctx context.Context, eventType, methodID, gateway string, state checkout.State) {
	data := events.PaymentEvent{MethodID: methodID, Gateway: gateway}
	if order := state.GetOrder(); order != nil {
		data.OrderID = order.OrderID
		data.PaymentStatus = order.Payment.Status
		data.RedirectURL = order.Payment.RedirectURL
	}
	if data.Gateway == "" {
		if method, ok := state.GetPaymentMethod(methodID); ok {
			data.Gateway = method.Gateway
		}
	}

	evt := events.Envelope{
		EventType:    eventType,
		EventVersion: events.EventVersion,
		AggregateID:  data.OrderID,
		Data:         data,
	}
	if err := p.publisher.Publish(ctx, data.OrderID, evt); err != nil {
		logging.WithSpan(ctx, p.logger).Error("event_publish_failed",
			zap.String("event_type", eventType),
			zap.String("order_id", data.OrderID),
			zap.Error(err),
		)
	}
}
