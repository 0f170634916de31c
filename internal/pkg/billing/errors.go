package billing

import "fmt"

// ValidationError reports missing or invalid caller input. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports an unresolvable gateway or a missing gateway
// capability. Fatal to the calling operation; needs operator intervention.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// NewConfigurationError builds a ConfigurationError from a format string.
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// GatewayDeclineError means the gateway responded but rejected the
// transaction. Message and Code carry the gateway's reason verbatim; Code
// is 0 when the gateway supplied none.
type GatewayDeclineError struct {
	Message string
	Code    int
}

func (e *GatewayDeclineError) Error() string {
	if e.Message == "" {
		return "transaction declined by gateway"
	}
	return e.Message
}

// GatewayTransportError means the network or protocol failed before a
// definitive gateway response. The true outcome is unknown: the pending
// ledger row is left untouched and the caller must reconcile via
// FetchTransaction before retrying.
type GatewayTransportError struct {
	Message string
	Err     error
}

func (e *GatewayTransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GatewayTransportError) Unwrap() error { return e.Err }

// ConflictError reports an operation that would break an invariant, such as
// deleting the card backing an active subscription. No mutation happened.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NewConflictError builds a ConflictError from a format string.
func NewConflictError(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
