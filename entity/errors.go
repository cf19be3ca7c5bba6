package entity

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidBuyer         = errors.New("invalid buyer")
	ErrInvalidProduct       = errors.New("invalid product info")
	ErrInvalidTransactionId = errors.New("invalid transaction id")
	ErrDuplicateTransaction = errors.New("transaction id already used")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrAmountMismatch       = errors.New("amount mismatch")
	ErrRefundNotAllowed     = errors.New("refund not allowed")
)

// ConfigurationError reports missing or invalid merchant settings. It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration: %s is not set", e.Field)
	}
	return fmt.Sprintf("configuration: invalid %s: %s", e.Field, e.Reason)
}

// GatewayCommunicationError wraps a failed server-to-server call. The outcome of the
// payment is unknown when this is returned, so callers must not treat it as a failed payment.
type GatewayCommunicationError struct {
	Command    string
	StatusCode int
	Err        error
}

func (e *GatewayCommunicationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: http status %d: %v", e.Command, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Command, e.Err)
}

func (e *GatewayCommunicationError) Unwrap() error {
	return e.Err
}

// IsGatewayCommunication reports whether err is, or wraps, a GatewayCommunicationError.
func IsGatewayCommunication(err error) bool {
	var gce *GatewayCommunicationError
	return errors.As(err, &gce)
}
