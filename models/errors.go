package models

import (
	"errors"
	"fmt"
)

// Error codes used in run results and internal error handling.
const (
	ErrCodeInvalidURL       = "INVALID_URL"
	ErrCodeBlockedHost      = "BLOCKED_HOST"
	ErrCodeUnresolvableHost = "UNRESOLVABLE_HOST"
	ErrCodeLoadTimeout      = "LOAD_TIMEOUT"
	ErrCodeNavigation       = "NAVIGATION_FAILED"
	ErrCodePoolExhausted    = "POOL_EXHAUSTED"
	ErrCodeBrowserCrash     = "BROWSER_CRASH"
	ErrCodeFieldExtraction  = "FIELD_EXTRACTION_FAILED"
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeEvaluatorFailure = "EVALUATOR_FAILURE"
)

// MonitorError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type MonitorError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *MonitorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *MonitorError) Unwrap() error {
	return e.Err
}

// NewMonitorError creates a new MonitorError.
func NewMonitorError(code, message string, err error) *MonitorError {
	return &MonitorError{Code: code, Message: message, Err: err}
}

// ErrorKind returns the taxonomy code for err, or "UNKNOWN" when the error
// carries no code. Used as the metrics failure label.
func ErrorKind(err error) string {
	var me *MonitorError
	if errors.As(err, &me) {
		return me.Code
	}
	return "UNKNOWN"
}

// Transient reports whether err is worth retrying. Failures that are a
// property of the target configuration (SSRF block, malformed config, bad URL)
// are never transient; failures that are a property of network or resource
// conditions are. Uncoded errors default to transient so raw navigation
// failures get the same backoff treatment.
func Transient(err error) bool {
	var me *MonitorError
	if !errors.As(err, &me) {
		return true
	}
	switch me.Code {
	case ErrCodeLoadTimeout, ErrCodePoolExhausted, ErrCodeUnresolvableHost,
		ErrCodeBrowserCrash, ErrCodeNavigation:
		return true
	}
	return false
}
