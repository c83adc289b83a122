package checkout

import "maps"

// State is a read-only snapshot of the checkout. Stores hand out copies, so
// holders may keep a State without observing later changes.
type State struct {
	Cart           *Cart                    `json:"cart,omitempty"`
	Order          *Order                   `json:"order,omitempty"`
	PaymentMethods map[string]PaymentMethod `json:"paymentMethods,omitempty"`
	RemotePayments map[string]RemotePayment `json:"remotePayments,omitempty"`
}

// GetCart returns the cart, or nil when none is loaded.
func (s State) GetCart() *Cart {
	return s.Cart
}

// GetOrder returns the current order, or nil when no order was placed.
func (s State) GetOrder() *Order {
	return s.Order
}

// GetPaymentMethod looks up a loaded payment method by id.
func (s State) GetPaymentMethod(id string) (PaymentMethod, bool) {
	if s.PaymentMethods == nil {
		return PaymentMethod{}, false
	}
	m, ok := s.PaymentMethods[id]
	return m, ok
}

// WithCart returns a copy of the state with the cart replaced.
func (s State) WithCart(cart Cart) State {
	out := s.clone()
	out.Cart = &cart
	return out
}

// WithOrder returns a copy of the state with the order replaced.
func (s State) WithOrder(order Order) State {
	out := s.clone()
	out.Order = &order
	return out
}

// WithPaymentMethod returns a copy of the state with the method added or replaced.
func (s State) WithPaymentMethod(method PaymentMethod) State {
	out := s.clone()
	if out.PaymentMethods == nil {
		out.PaymentMethods = make(map[string]PaymentMethod)
	}
	out.PaymentMethods[method.ID] = method
	return out
}

// WithRemotePayment returns a copy of the state recording a remote payment.
func (s State) WithRemotePayment(rp RemotePayment) State {
	out := s.clone()
	if out.RemotePayments == nil {
		out.RemotePayments = make(map[string]RemotePayment)
	}
	out.RemotePayments[rp.MethodName] = rp
	return out
}

func (s State) clone() State {
	out := State{
		PaymentMethods: maps.Clone(s.PaymentMethods),
		RemotePayments: maps.Clone(s.RemotePayments),
	}
	if s.Cart != nil {
		c := *s.Cart
		out.Cart = &c
	}
	if s.Order != nil {
		o := *s.Order
		out.Order = &o
	}
	return out
}
