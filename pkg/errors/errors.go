package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by the HTTP layer and the remote clients.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Sentinel errors for the cart/wishlist synchronization taxonomy.
var (
	// ErrAuthenticationRequired: a mutation was attempted without a signed-in identity.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrAuthenticationExpired: the remote store rejected the credential after an optimistic change.
	ErrAuthenticationExpired = errors.New("authentication expired")
	// ErrTransientRemote: network or server failure while talking to the remote store.
	ErrTransientRemote = errors.New("transient remote failure")
	// ErrStorage: the local cache could not be read or written.
	ErrStorage = errors.New("storage failure")
	// ErrEnrichment: the product catalog could not resolve a product.
	ErrEnrichment = errors.New("enrichment failure")
	// ErrIdentityChanged: the identity changed while a confirmation was pending.
	ErrIdentityChanged = errors.New("identity changed")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// AuthenticationRequired creates a 401 error asking the caller to sign in.
func AuthenticationRequired(message string) *AppError {
	return &AppError{
		Code:    "AUTHENTICATION_REQUIRED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrAuthenticationRequired,
	}
}

// AuthenticationExpired creates a 401 error asking the caller to sign in again.
// The cause is kept so errors.Is still matches it.
func AuthenticationExpired(message string, cause error) *AppError {
	return &AppError{
		Code:    "AUTHENTICATION_EXPIRED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     joinCause(ErrAuthenticationExpired, cause),
	}
}

// TransientRemote creates a 503 error for a retryable remote failure.
func TransientRemote(message string, cause error) *AppError {
	return &AppError{
		Code:    "TRANSIENT_REMOTE_FAILURE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     joinCause(ErrTransientRemote, cause),
	}
}

// Storage creates an error for a local cache failure. It is logged, never returned to the UI.
func Storage(op string, cause error) *AppError {
	return &AppError{
		Code:    "STORAGE_FAILURE",
		Message: fmt.Sprintf("local cache %s failed", op),
		Status:  http.StatusInternalServerError,
		Err:     joinCause(ErrStorage, cause),
	}
}

// Enrichment creates an error for a catalog lookup failure.
func Enrichment(productID string, cause error) *AppError {
	return &AppError{
		Code:    "ENRICHMENT_FAILURE",
		Message: fmt.Sprintf("product %s could not be resolved", productID),
		Status:  http.StatusBadGateway,
		Err:     joinCause(ErrEnrichment, cause),
	}
}

// IdentityChanged creates a 409 error for a confirmation superseded by sign-out or sign-in.
func IdentityChanged(message string) *AppError {
	return &AppError{
		Code:    "IDENTITY_CHANGED",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrIdentityChanged,
	}
}

func joinCause(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrIdentityChanged):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrAuthenticationRequired),
		errors.Is(err, ErrAuthenticationExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrServiceUnavail), errors.Is(err, ErrTransientRemote):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
