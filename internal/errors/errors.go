// Package errors provides the broker's hierarchical error taxonomy:
// validation, authorization, not-found, conflict, downstream-transient,
// downstream-permanent, and invariant-violation errors, each carrying a
// stable snake_case code and a human message.
package errors

import (
	"errors"
	"fmt"
)

// Category groups errors by taxonomy.
type Category string

const (
	CategoryValidation         Category = "validation"
	CategoryAuthorization      Category = "authorization"
	CategoryNotFound           Category = "not_found"
	CategoryConflict           Category = "conflict"
	CategoryDownstreamTransient Category = "downstream_transient"
	CategoryDownstreamPermanent Category = "downstream_permanent"
	CategoryInvariant          Category = "invariant"
)

// Well-known stable error codes surfaced to callers (HTTP status mapping or
// dldata-resp.error).
const (
	CodeDeviceNotExist      = "err_broker_device_not_exist"
	CodeApplicationNotExist = "err_broker_application_not_exist"
	CodeNetworkNotExist     = "err_broker_network_not_exist"
	CodeUnitNotExist        = "err_broker_unit_not_exist"
	CodeRouteNotExist       = "err_broker_route_not_exist"
	CodeUnitExist           = "err_broker_unit_exist"
	CodeApplicationExist    = "err_broker_application_exist"
	CodeNetworkExist        = "err_broker_network_exist"
	CodeRouteExist          = "err_broker_route_exist"
	CodeParamInvalid        = "err_broker_param"
	CodeDeviceUnitMismatch  = "err_broker_device_unit_mismatch"
	CodeExpired             = "err_broker_expired"
	CodeUnauthorized        = "err_broker_unauthorized"
	CodeForbidden           = "err_broker_forbidden"
	CodeUnknown             = "err_broker_unknown"
)

// BrokerError is the base error type for all broker-core errors.
type BrokerError struct {
	Code        string         // stable snake_case code, e.g. err_broker_device_not_exist
	Category    Category       // error category for grouping/dispatch
	Message     string         // human-readable message
	Recoverable bool           // whether a caller may usefully retry
	Context     map[string]any // additional diagnostic context
	Cause       error          // underlying error, if any
}

// Error implements the error interface.
func (e *BrokerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *BrokerError) Unwrap() error { return e.Cause }

// Is implements errors.Is by comparing error codes.
func (e *BrokerError) Is(target error) bool {
	var t *BrokerError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithContext returns a copy of the error with additional context.
func (e *BrokerError) WithContext(key string, value any) *BrokerError {
	n := *e
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	n.Context = ctx
	return &n
}

// WithCause returns a copy of the error with a wrapped cause.
func (e *BrokerError) WithCause(cause error) *BrokerError {
	n := *e
	n.Cause = cause
	return &n
}

// New creates a new BrokerError.
func New(code string, category Category, message string) *BrokerError {
	return &BrokerError{
		Code:     code,
		Category: category,
		Message:  message,
		Context:  make(map[string]any),
	}
}

// NewValidation creates a validation error (surfaced as HTTP 400 or a
// dldata-resp errorCode).
func NewValidation(code, message string) *BrokerError {
	e := New(code, CategoryValidation, message)
	e.Recoverable = true
	return e
}

// NewNotFound creates a not-found error (surfaced as HTTP 404 or a
// dldata-resp errorCode).
func NewNotFound(code, message string) *BrokerError {
	e := New(code, CategoryNotFound, message)
	e.Recoverable = false
	return e
}

// NewConflict creates a conflict error (duplicate code/address/route).
func NewConflict(code, message string) *BrokerError {
	e := New(code, CategoryConflict, message)
	e.Recoverable = false
	return e
}

// NewAuthorization creates an authorization error (401/403).
func NewAuthorization(code, message string) *BrokerError {
	e := New(code, CategoryAuthorization, message)
	e.Recoverable = false
	return e
}

// NewDownstreamTransient creates a transient downstream (DB/MQ) error.
// Callers should retry once, then surface 503 / log-and-drop.
func NewDownstreamTransient(message string, cause error) *BrokerError {
	e := New(CodeUnknown, CategoryDownstreamTransient, message)
	e.Recoverable = true
	e.Cause = cause
	return e
}

// NewDownstreamPermanent creates a permanent downstream error (unparseable
// remote response). Surfaced as 500.
func NewDownstreamPermanent(message string, cause error) *BrokerError {
	e := New(CodeUnknown, CategoryDownstreamPermanent, message)
	e.Recoverable = false
	e.Cause = cause
	return e
}

// NewInvariant creates an invariant-violation error (e.g. device-unit
// mismatch). Fatal for the request, not the process.
func NewInvariant(code, message string) *BrokerError {
	e := New(code, CategoryInvariant, message)
	e.Recoverable = false
	return e
}

// Wrap wraps an arbitrary error with a BrokerError, preserving the chain.
func Wrap(err error, code string, category Category, message string) *BrokerError {
	return &BrokerError{
		Code:     code,
		Category: category,
		Message:  message,
		Context:  make(map[string]any),
		Cause:    err,
	}
}

// As extracts a *BrokerError from an error chain.
func As(err error) *BrokerError {
	var be *BrokerError
	if errors.As(err, &be) {
		return be
	}
	return nil
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, category Category) bool {
	be := As(err)
	return be != nil && be.Category == category
}

// IsRecoverable reports whether err is marked recoverable.
func IsRecoverable(err error) bool {
	be := As(err)
	return be != nil && be.Recoverable
}

// ErrNotFound is a generic not-found error. Because BrokerError.Is compares
// codes, errors.Is(err, ErrNotFound) holds only for errors whose code is
// CodeRouteNotExist; not-found errors with other codes match
// IsCategory(err, CategoryNotFound) but not ErrNotFound.
var ErrNotFound = New(CodeRouteNotExist, CategoryNotFound, "entity not found")
