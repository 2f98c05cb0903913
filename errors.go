package authclient

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidCredentials identifies a rejected login attempt.
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	// TextCodeSessionExpired identifies an unrecoverable refresh failure.
	TextCodeSessionExpired = "SESSION_EXPIRED"
	// TextCodeValidationFailure identifies a payload rejected with field errors.
	TextCodeValidationFailure = "VALIDATION_FAILURE"
	// TextCodeNetworkFailure identifies a transport-level failure.
	TextCodeNetworkFailure = "NETWORK_FAILURE"
	// TextCodeNoActiveSession identifies operations that need an authenticated session.
	TextCodeNoActiveSession = "NO_ACTIVE_SESSION"
	// TextCodeUnknown identifies anything we could not categorize.
	TextCodeUnknown = "UNKNOWN_AUTH_FAILURE"

	fieldErrorsMetadataKey = "fields"
)

// ErrInvalidCredentials is returned when the token endpoint rejects a login.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired is returned when the refresh exchange fails or no refresh
// token exists; the token store has already been cleared when callers see it.
var ErrSessionExpired = goerrors.New("session expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoActiveSession is returned by operations that require an authenticated
// session (profile update, deactivation) while logged out.
var ErrNoActiveSession = goerrors.New("no active session", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoActiveSession).
	WithCode(goerrors.CodeUnauthorized)

// NewValidationError builds the typed failure surfaced for payloads the
// backend (or local validation) rejected, carrying per-field messages.
func NewValidationError(fields map[string]string) *goerrors.Error {
	err := goerrors.New("validation failed", goerrors.CategoryValidation).
		WithTextCode(TextCodeValidationFailure).
		WithCode(goerrors.CodeBadRequest)

	if len(fields) > 0 {
		err = err.WithMetadata(map[string]any{
			fieldErrorsMetadataKey: fields,
		})
	}

	return err
}

// WrapNetworkError categorizes transport-level failures; these are retryable
// by user action, never automatically.
func WrapNetworkError(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, msg).
		WithTextCode(TextCodeNetworkFailure)
}

// WrapUnknownError categorizes anything that fell through classification.
func WrapUnknownError(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeUnknown).
		WithCode(goerrors.CodeInternal)
}

// IsInvalidCredentialsError will check for rejected logins
func IsInvalidCredentialsError(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials)
}

// IsSessionExpiredError will check for unrecoverable session expiry
func IsSessionExpiredError(err error) bool {
	return hasTextCode(err, TextCodeSessionExpired)
}

// IsValidationError will check for field-level validation failures
func IsValidationError(err error) bool {
	return hasTextCode(err, TextCodeValidationFailure)
}

// IsNetworkError will check for transport-level failures
func IsNetworkError(err error) bool {
	return hasTextCode(err, TextCodeNetworkFailure)
}

// FieldErrors extracts per-field messages from a validation failure; nil when
// the error carries none.
func FieldErrors(err error) map[string]string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return nil
	}

	raw, ok := richErr.Metadata[fieldErrorsMetadataKey]
	if !ok {
		return nil
	}

	switch fields := raw.(type) {
	case map[string]string:
		return fields
	case map[string]any:
		out := make(map[string]string, len(fields))
		for k, v := range fields {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	}

	return nil
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}

	return richErr.TextCode == code
}
