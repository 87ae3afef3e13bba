package engine

import (
	"errors"

	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

// FailureReason is the discriminated outcome surfaced to the UI layer.
type FailureReason string

const (
	ReasonNone                   FailureReason = ""
	ReasonAuthenticationRequired FailureReason = "authentication_required"
	ReasonAuthenticationExpired  FailureReason = "authentication_expired"
	ReasonTransientRemote        FailureReason = "transient_remote_failure"
	ReasonIdentityChanged        FailureReason = "identity_changed"
	ReasonInvalidInput           FailureReason = "invalid_input"
	ReasonUnknown                FailureReason = "unknown"
)

// ReasonOf classifies err.
func ReasonOf(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, apperrors.ErrAuthenticationRequired):
		return ReasonAuthenticationRequired
	case errors.Is(err, apperrors.ErrAuthenticationExpired):
		return ReasonAuthenticationExpired
	case errors.Is(err, apperrors.ErrTransientRemote):
		return ReasonTransientRemote
	case errors.Is(err, apperrors.ErrIdentityChanged):
		return ReasonIdentityChanged
	case errors.Is(err, apperrors.ErrInvalidInput):
		return ReasonInvalidInput
	default:
		return ReasonUnknown
	}
}

// Retryable reports whether the caller may retry the same mutation later.
func Retryable(err error) bool {
	return ReasonOf(err) == ReasonTransientRemote
}
