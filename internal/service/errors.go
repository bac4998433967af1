package service

import (
	"errors"
	"fmt"
	"time"
)

// FailureCode is the stable error vocabulary of the QR payment flow. Codes
// are returned to clients verbatim and mirrored into the audit log.
type FailureCode string

const (
	CodeRateLimited            FailureCode = "RATE_LIMITED"
	CodeInvalid                FailureCode = "INVALID"
	CodeTokenNotFound          FailureCode = "TOKEN_NOT_FOUND"
	CodeExpired                FailureCode = "EXPIRED"
	CodeDuplicate              FailureCode = "DUPLICATE"
	CodeUnauthorized           FailureCode = "UNAUTHORIZED"
	CodeRegenerationNotAllowed FailureCode = "REGENERATION_NOT_ALLOWED"
	CodeScanFailed             FailureCode = "SCAN_FAILED"
	CodeConfirmationFailed     FailureCode = "CONFIRMATION_FAILED"
)

// FlowError is a failure of the scan/confirm protocol with a caller-facing
// code. Internal causes stay wrapped and never leak into Message.
type FlowError struct {
	Code       FailureCode
	Message    string
	RetryAfter time.Duration
	cause      error
}

func (e *FlowError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error { return e.cause }

func newFlowError(code FailureCode, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

func wrapFlowError(code FailureCode, message string, cause error) *FlowError {
	return &FlowError{Code: code, Message: message, cause: cause}
}

// AsFlowError unwraps err to the protocol failure, if any.
func AsFlowError(err error) (*FlowError, bool) {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
