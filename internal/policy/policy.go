// Package policy decides, per order request, whether the off-site strategy
// must forward the payment section to order submission.
package policy

import (
	"fmt"
	"sort"

	"github.com/Knetic/govaluate"

	"github.com/yourorg/checkout-payments/internal/checkout"
)

// Decision is the outcome of evaluating the retention rules.
type Decision struct {
	RetainPayment bool
	RuleID        string // empty when no rule matched
}

// Rule retains (or strips) the payment section when Expression evaluates to true.
// Expressions see the parameters gateway, method, hasPaymentData and useStoreCredit.
type Rule struct {
	ID         string `mapstructure:"id"`
	Expression string `mapstructure:"expression"`
	Priority   int    `mapstructure:"priority"`
	Retain     bool   `mapstructure:"retain"`
}

type compiledRule struct {
	Rule
	expr *govaluate.EvaluableExpression
}

// PaymentPolicyEnforcer evaluates retention rules in priority order; the first
// matching rule wins. With no match the payment section is stripped.
type PaymentPolicyEnforcer struct {
	rules []compiledRule
}

// DefaultRules keeps the payment section only for gateways whose off-site
// integration reads it back.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "adyen_requires_payment", Expression: "gateway == 'adyen'", Priority: 1, Retain: true},
	}
}

// NewPaymentPolicyEnforcer compiles rules. A rule that does not compile fails
// the whole set.
func NewPaymentPolicyEnforcer(rules []Rule) (*PaymentPolicyEnforcer, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Expression == "" {
			return nil, fmt.Errorf("policy rule ID '%s' has an empty expression", r.ID)
		}
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule ID '%s': %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, expr: expr})
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority < compiled[j].Priority
	})
	return &PaymentPolicyEnforcer{rules: compiled}, nil
}

// Evaluate runs the rules against payload.
func (p *PaymentPolicyEnforcer) Evaluate(payload checkout.OrderRequest) (Decision, error) {
	params := parameters(payload)
	for _, r := range p.rules {
		result, err := r.expr.Evaluate(params)
		if err != nil {
			return Decision{}, fmt.Errorf("error evaluating rule ID '%s': %w", r.ID, err)
		}
		matched, ok := result.(bool)
		if !ok {
			return Decision{}, fmt.Errorf("rule ID '%s' did not evaluate to a boolean (got %T)", r.ID, result)
		}
		if matched {
			return Decision{RetainPayment: r.Retain, RuleID: r.ID}, nil
		}
	}
	return Decision{}, nil
}

// RetainPayment reports whether payload must be submitted with its payment section.
func (p *PaymentPolicyEnforcer) RetainPayment(payload checkout.OrderRequest) (bool, error) {
	decision, err := p.Evaluate(payload)
	if err != nil {
		return false, err
	}
	return decision.RetainPayment, nil
}

func parameters(payload checkout.OrderRequest) map[string]interface{} {
	params := map[string]interface{}{
		"gateway":        "",
		"method":         "",
		"hasPaymentData": false,
		"useStoreCredit": payload.UseStoreCredit,
	}
	if payload.Payment != nil {
		params["gateway"] = payload.Payment.Gateway
		params["method"] = payload.Payment.Name
		params["hasPaymentData"] = len(payload.Payment.PaymentData) > 0
	}
	return params
}
