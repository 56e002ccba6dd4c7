package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewEnvelopeError creates an envelope validation error; the envelope is
// dropped and ingestion continues, so these are never retryable.
func NewEnvelopeError(reason string) *AppError {
	return New(ErrCodeInvalidEnvelope, reason).
		WithUserMessage("Malformed envelope")
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewDeliveryError classifies a webhook delivery failure. Timeouts and
// transport errors are transient; non-2xx responses are permanent for the
// current attempt but still consume a retry slot.
func NewDeliveryError(callbackURL string, statusCode int, err error) *AppError {
	code := ErrCodeDeliveryPermanent
	transient := statusCode == 0 || statusCode >= 500 || statusCode == 429 || statusCode == 408
	if transient {
		code = ErrCodeDeliveryTransient
	}

	appErr := Wrap(err, code, "webhook delivery failed")
	appErr.Retryable = transient
	return appErr.
		WithContext("callback_url", callbackURL).
		WithContext("status_code", statusCode)
}

// NewChallengeError creates a subscription challenge failure
func NewChallengeError(callbackURL, reason string) *AppError {
	return New(ErrCodeChallengeFailed, reason).
		WithContext("callback_url", callbackURL).
		WithUserMessage("Webhook challenge failed. Endpoint must echo the challenge nonce")
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewAuthError creates an authentication/authorization error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}
