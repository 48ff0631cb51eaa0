// Package errors defines the tagged error taxonomy used across the node.
// Every fallible operation in the core returns an *AppError (possibly
// wrapping a cause); the HTTP layer maps kinds to status codes and never
// inspects anything else.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for programmatic handling and HTTP mapping.
type Kind string

const (
	KindCollectionNotFound   Kind = "COLLECTION_NOT_FOUND"
	KindDocumentNotFound     Kind = "DOCUMENT_NOT_FOUND"
	KindDuplicateEntry       Kind = "DUPLICATE_ENTRY"
	KindDataValidation       Kind = "DATA_VALIDATION"
	KindVariableInjection    Kind = "VARIABLE_INJECTION"
	KindQueryValidation      Kind = "QUERY_VALIDATION"
	KindResourceAccessDenied Kind = "RESOURCE_ACCESS_DENIED"
	KindUnauthorized         Kind = "UNAUTHORIZED"
	KindPaymentRequired      Kind = "PAYMENT_REQUIRED"
	KindForbidden            Kind = "FORBIDDEN"
	KindTimeout              Kind = "TIMEOUT"
	KindDatabase             Kind = "DATABASE_ERROR"
	KindInvalidIndexOptions  Kind = "INVALID_INDEX_OPTIONS"
	KindMaintenance          Kind = "MAINTENANCE"
)

// AppError is the error type carried through the core.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind.
func New(kind Kind, message string) error {
	return &AppError{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, message string, cause error) error {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// Constructors for the common kinds.

func CollectionNotFound(id string) error {
	return Newf(KindCollectionNotFound, "collection %s not found", id)
}

func DocumentNotFound(id string) error {
	return Newf(KindDocumentNotFound, "document %s not found", id)
}

func Duplicate(message string) error {
	return New(KindDuplicateEntry, message)
}

func Validation(message string) error {
	return New(KindDataValidation, message)
}

func Validationf(format string, args ...any) error {
	return Newf(KindDataValidation, format, args...)
}

func QueryValidation(message string) error {
	return New(KindQueryValidation, message)
}

func VariableInjection(message string) error {
	return New(KindVariableInjection, message)
}

func ResourceAccessDenied(message string) error {
	return New(KindResourceAccessDenied, message)
}

func Unauthorized(message string) error {
	return New(KindUnauthorized, message)
}

func PaymentRequired(message string) error {
	return New(KindPaymentRequired, message)
}

func Forbidden(message string) error {
	return New(KindForbidden, message)
}

func Timeout(message string) error {
	return New(KindTimeout, message)
}

func Database(message string, cause error) error {
	return &AppError{Kind: KindDatabase, Message: message, Cause: cause}
}

func InvalidIndexOptions(message string) error {
	return New(KindInvalidIndexOptions, message)
}

// KindOf returns the kind of err, or the empty kind for foreign errors.
func KindOf(err error) Kind {
	var app *AppError
	if errors.As(err, &app) {
		return app.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code exposed at the HTTP boundary.
// Foreign errors map to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindDataValidation, KindQueryValidation, KindVariableInjection, KindInvalidIndexOptions:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindPaymentRequired:
		return http.StatusPaymentRequired
	case KindForbidden, KindResourceAccessDenied:
		return http.StatusForbidden
	case KindCollectionNotFound, KindDocumentNotFound:
		return http.StatusNotFound
	case KindDuplicateEntry:
		return http.StatusConflict
	case KindMaintenance:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
