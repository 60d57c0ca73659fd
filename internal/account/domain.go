package account

import (
	"errors"
	"time"
)

// Account is a stored user account, including credential material. Only the
// account package and auth read the password hash; the roster never sees it.
type Account struct {
	ID            string
	Email         string
	DisplayName   string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MutationKind labels a guarded or simple account mutation.
type MutationKind string

const (
	KindDelete         MutationKind = "delete"
	KindProfileUpdate  MutationKind = "profile_update"
	KindPasswordChange MutationKind = "password_change"
)

// PendingMutation is the transient record of one in-flight mutation. It is
// created on operator intent and cleared when the attempt confirms, cancels,
// or completes. Never persisted.
type PendingMutation struct {
	Kind        MutationKind
	TargetID    string
	TargetEmail string
	OperatorID  string
	RequestedAt time.Time
}

// State enumerates the controller states.
type State int

const (
	StateIdle State = iota
	StateAwaitingConfirmation
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

var (
	// ErrAuthenticationDeclined indicates the re-authentication proof was
	// absent or invalid. The guarded mutation aborts silently; the
	// confirmation prompt carries its own feedback.
	ErrAuthenticationDeclined = errors.New("account: re-authentication declined")
	// ErrNoPendingMutation indicates Confirm or Cancel was called outside
	// the AwaitingConfirmation state.
	ErrNoPendingMutation = errors.New("account: no pending mutation")
)
