package shipping

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a ShippingError for callers deciding what to do next.
type ErrorKind string

const (
	// KindConfiguration is a missing credential or setting. Fatal, not retryable.
	KindConfiguration ErrorKind = "configuration"
	// KindValidation is bad or missing input, or an operation not allowed in the current state.
	KindValidation ErrorKind = "validation"
	// KindNotFound is a missing local record.
	KindNotFound ErrorKind = "not_found"
	// KindConflict is a concurrent write that lost the race.
	KindConflict ErrorKind = "conflict"
	// KindUpstream is a carrier or platform rejection, surfaced with raw status and body.
	KindUpstream ErrorKind = "upstream"
)

// ShippingError represents an error from the orchestration layer or one of
// the systems it talks to.
type ShippingError struct {
	Source     string // "aggregator", "shopify", "store", "orchestrator"
	Kind       ErrorKind
	Code       string
	Message    string
	StatusCode int
	Body       string
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *ShippingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s error (%s): %s: %v", e.Source, e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s error (%s): %s", e.Source, e.Kind, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ShippingError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for ShippingError.
func (e *ShippingError) Is(target error) bool {
	t, ok := target.(*ShippingError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewShippingError creates a new ShippingError.
func NewShippingError(source string, kind ErrorKind, code, message string) *ShippingError {
	return &ShippingError{
		Source:  source,
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(source, message string) *ShippingError {
	return NewShippingError(source, KindConfiguration, "MISSING_CONFIGURATION", message)
}

// NewValidationError creates a validation error.
func NewValidationError(source, code, message string) *ShippingError {
	return NewShippingError(source, KindValidation, code, message)
}

// NewUpstreamError creates an upstream error.
func NewUpstreamError(source, code, message string) *ShippingError {
	return NewShippingError(source, KindUpstream, code, message)
}

// WithCause adds a cause to the error.
func (e *ShippingError) WithCause(err error) *ShippingError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *ShippingError) WithStatusCode(code int) *ShippingError {
	e.StatusCode = code
	return e
}

// WithBody keeps the raw upstream body for operator diagnosis.
func (e *ShippingError) WithBody(body string) *ShippingError {
	e.Body = body
	return e
}

// WithRetryable marks the error as retryable.
func (e *ShippingError) WithRetryable(retryable bool) *ShippingError {
	e.Retryable = retryable
	return e
}

// Sentinel errors for common orchestration scenarios.
var (
	// ErrLabelNotFound indicates the label id does not exist for the organization.
	ErrLabelNotFound = NewShippingError("store", KindNotFound, "LABEL_NOT_FOUND", "label not found")

	// ErrOrderNotFound indicates the order does not exist for the organization.
	ErrOrderNotFound = NewShippingError("store", KindNotFound, "ORDER_NOT_FOUND", "order not found")

	// ErrLabelConflict indicates another active label was stored concurrently.
	ErrLabelConflict = NewShippingError("store", KindConflict, "LABEL_CONFLICT", "an active label already exists for the order")

	// ErrLabelAlreadyCancelled indicates the label was already cancelled.
	ErrLabelAlreadyCancelled = NewValidationError("orchestrator", "LABEL_ALREADY_CANCELLED", "label is already cancelled")

	// ErrManualLabel indicates a manual label that the carrier never issued.
	ErrManualLabel = NewValidationError("orchestrator", "MANUAL_LABEL", "manual labels cannot be cancelled with the carrier")

	// ErrLabelNotActive indicates a label in a status that cannot be cancelled.
	ErrLabelNotActive = NewValidationError("orchestrator", "LABEL_NOT_ACTIVE", "only created labels can be cancelled")

	// ErrMissingTrackingNumber indicates the label has no tracking number.
	ErrMissingTrackingNumber = NewValidationError("orchestrator", "MISSING_TRACKING_NUMBER", "label has no tracking number")

	// ErrNoActiveLabel indicates an operation needing a carrier label found none.
	ErrNoActiveLabel = NewValidationError("orchestrator", "NO_ACTIVE_LABEL", "order has no active carrier label")

	// ErrNoActionableFulfillmentOrder indicates no fulfillment order can be fulfilled.
	ErrNoActionableFulfillmentOrder = NewValidationError("orchestrator", "NO_ACTIONABLE_FULFILLMENT_ORDER", "no fulfillment order can be fulfilled")

	// ErrInvalidTransition indicates an operational status change not in the transition table.
	ErrInvalidTransition = NewValidationError("orchestrator", "INVALID_TRANSITION", "operational status transition not allowed")

	// ErrServiceUnavailable indicates the upstream circuit is open.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// KindOf returns the kind of a ShippingError in the chain, or "" if none.
func KindOf(err error) ErrorKind {
	var shippingErr *ShippingError
	if errors.As(err, &shippingErr) {
		return shippingErr.Kind
	}
	return ""
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var shippingErr *ShippingError
	if errors.As(err, &shippingErr) {
		return shippingErr.Retryable
	}
	return errors.Is(err, ErrServiceUnavailable)
}

// HTTPStatus maps an error to the status returned to inbound callers.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrServiceUnavailable) {
		return http.StatusServiceUnavailable
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
