package strategy

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingData marks failures caused by a required field being absent.
	ErrMissingData = errors.New("missing data")
	// ErrNotInitialized marks operations invoked before initialization completed.
	ErrNotInitialized = errors.New("not initialized")
	// ErrProviderRejected marks a business-level non-approval by a provider.
	ErrProviderRejected = errors.New("provider rejected payment")
	// ErrStrategyNotFound is returned when no strategy is registered for a method.
	ErrStrategyNotFound = errors.New("payment strategy not found")
)

// MissingDataError reports a required field that was absent.
type MissingDataError struct {
	Message string
}

// NewMissingDataError builds a MissingDataError with a formatted message.
func NewMissingDataError(format string, args ...any) *MissingDataError {
	return &MissingDataError{Message: fmt.Sprintf(format, args...)}
}

func (e *MissingDataError) Error() string { return e.Message }

func (e *MissingDataError) Is(target error) bool { return target == ErrMissingData }

// NotInitializedError reports use of a strategy before Initialize finished.
type NotInitializedError struct {
	Strategy string
}

func (e *NotInitializedError) Error() string {
	if e.Strategy == "" {
		return "payment strategy is not initialized"
	}
	return fmt.Sprintf("payment strategy %q is not initialized", e.Strategy)
}

func (e *NotInitializedError) Is(target error) bool { return target == ErrNotInitialized }

// RejectionError carries the provider's own result when it declines a payment.
// Callers branch on it with errors.As instead of treating it as a transport failure.
type RejectionError struct {
	Provider string
	Result   any
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("payment was not approved by provider %q", e.Provider)
}

func (e *RejectionError) Is(target error) bool { return target == ErrProviderRejected }
