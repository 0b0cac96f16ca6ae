package provider

import (
	"errors"
	"fmt"

	"github.com/nhle/gtd-mail/internal/model"
)

// AuthError indicates the provider rejected the account's credentials.
// The caller must not retry blindly: the account needs a token refresh
// or, when Reconnect is set, a full re-authorization by the user.
type AuthError struct {
	Provider model.EmailProvider

	// Reconnect is set when the refresh token itself was rejected
	// (OAuth invalid_grant) and the account must be flagged
	// disconnected.
	Reconnect bool

	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// NeedsReconnect reports whether err carries an AuthError that requires
// the account to be re-authorized rather than refreshed.
func NeedsReconnect(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Reconnect
}

// TransientError indicates the provider or network was temporarily
// unavailable. The operation is safe to retry with backoff; retrying is
// the caller's decision, not the client's.
type TransientError struct {
	Provider model.EmailProvider
	Message  string
	Err      error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient error (%s): %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("transient error (%s): %s", e.Provider, e.Message)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var tErr *TransientError
	return errors.As(err, &tErr)
}

// MalformedMessageError marks a single message that failed to parse.
// Clients contain it: the message is skipped and the batch continues.
type MalformedMessageError struct {
	Provider  model.EmailProvider
	MessageID string
	Err       error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message %s (%s): %v", e.MessageID, e.Provider, e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// UnsupportedProviderError indicates a credential/client variant mismatch
// or an unknown provider tag. This is a programming or configuration
// error and is surfaced immediately rather than worked around.
type UnsupportedProviderError struct {
	Provider model.EmailProvider
	Reason   string
}

func (e *UnsupportedProviderError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported provider %q: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("unsupported provider %q", e.Provider)
}
