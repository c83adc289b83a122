package checkout

import (
	"context"
	"reflect"
	"sync"
)

// Action computes the next checkout state. Actions may call remote systems;
// an error leaves the state untouched.
type Action func(ctx context.Context, current State) (State, error)

// Replace builds an Action from a pure state transition.
func Replace(fn func(State) State) Action {
	return func(_ context.Context, current State) (State, error) {
		return fn(current), nil
	}
}

// Subscriber reacts to a committed state change.
type Subscriber func(ctx context.Context, state State)

// Selector narrows the state a subscriber cares about. A subscriber with
// selectors is only notified when at least one selected value changes.
type Selector func(State) any

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Store owns the checkout state.
type Store interface {
	GetState() State
	Dispatch(ctx context.Context, action Action) (State, error)
	Subscribe(subscriber Subscriber, selectors ...Selector) Unsubscribe
}

type subscription struct {
	id        uint64
	fn        Subscriber
	selectors []Selector
	last      []any
}

// MemoryStore is an in-process Store. Dispatches are serialized; subscribers
// run synchronously after the change is committed, outside any store lock,
// so they may dispatch themselves.
type MemoryStore struct {
	dispatchMu sync.Mutex

	mu     sync.RWMutex
	state  State
	subs   []*subscription
	nextID uint64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding initial.
func NewMemoryStore(initial State) *MemoryStore {
	return &MemoryStore{state: initial.clone()}
}

// GetState returns a copy of the current state.
func (s *MemoryStore) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Dispatch runs action against the current state and commits its result.
func (s *MemoryStore) Dispatch(ctx context.Context, action Action) (State, error) {
	s.dispatchMu.Lock()
	next, err := action(ctx, s.GetState())
	if err != nil {
		s.dispatchMu.Unlock()
		return s.GetState(), err
	}

	s.mu.Lock()
	s.state = next.clone()
	committed := s.state.clone()
	notify := s.dueSubscribers(committed)
	s.mu.Unlock()
	s.dispatchMu.Unlock()

	for _, fn := range notify {
		fn(ctx, committed.clone())
	}
	return committed, nil
}

// Subscribe registers subscriber. Selected values are captured at
// subscription time, so the subscriber is not called for the current state.
func (s *MemoryStore) Subscribe(subscriber Subscriber, selectors ...Selector) Unsubscribe {
	s.mu.Lock()
	s.nextID++
	sub := &subscription{
		id:        s.nextID,
		fn:        subscriber,
		selectors: selectors,
		last:      selectAll(selectors, s.state),
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(sub.id) })
	}
}

// dueSubscribers must be called with s.mu held.
func (s *MemoryStore) dueSubscribers(state State) []Subscriber {
	var due []Subscriber
	for _, sub := range s.subs {
		if len(sub.selectors) == 0 {
			due = append(due, sub.fn)
			continue
		}
		current := selectAll(sub.selectors, state)
		if !reflect.DeepEqual(current, sub.last) {
			sub.last = current
			due = append(due, sub.fn)
		}
	}
	return due
}

func (s *MemoryStore) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

func selectAll(selectors []Selector, state State) []any {
	if len(selectors) == 0 {
		return nil
	}
	out := make([]any, len(selectors))
	for i, sel := range selectors {
		out[i] = sel(state)
	}
	return out
}
