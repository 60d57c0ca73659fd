package shared

import "errors"

var (
	// ErrNotFound indicates the requested account does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates a password check failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrMutationPending indicates another guarded mutation is still in flight.
	ErrMutationPending = errors.New("mutation already pending")
	// ErrPasswordMismatch indicates new password and confirmation differ.
	ErrPasswordMismatch = errors.New("password confirmation does not match")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage converts an error into a message safe to render to the
// operator. Unknown errors collapse to a generic message so internals never
// leak into the UI.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested account no longer exists."
	case errors.Is(err, ErrInvalidCredentials):
		return "Email or password is incorrect."
	case errors.Is(err, ErrEmailTaken):
		return "That email address is already registered."
	case errors.Is(err, ErrMutationPending):
		return "Another change is still being processed. Try again in a moment."
	case errors.Is(err, ErrPasswordMismatch):
		return "New password and confirmation do not match."
	default:
		return "Something went wrong. Please try again."
	}
}
