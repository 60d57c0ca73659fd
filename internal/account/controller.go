package account

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hotwellkz/app122/internal/shared"
)

// ServicePort is the mutation surface the controller commits through.
type ServicePort interface {
	DeleteAccount(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id, displayName string) error
	ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error
}

// Reauthenticator re-proves the operator's identity from a password.
type Reauthenticator interface {
	VerifyPassword(ctx context.Context, accountID, password string) error
}

// DeleteTarget identifies the account a guarded deletion points at.
type DeleteTarget struct {
	ID    string
	Email string
}

// Controller gates account mutations. Deletion runs the guarded state
// machine Idle -> AwaitingConfirmation -> (Committing -> Idle) | Idle;
// profile and password changes run the simpler Idle -> Committing -> Idle.
// At most one mutation is pending at a time: overlapping requests are
// rejected, never merged. Every path returns the controller to Idle.
//
// Outcome reporting goes through the per-request Notifier: exactly one
// success or failure notification per attempt that reached Committing, and
// none for cancellations or declined re-authentication.
type Controller struct {
	logger *slog.Logger
	svc    ServicePort
	reauth Reauthenticator

	mu      sync.Mutex
	state   State
	pending *PendingMutation
}

// NewController constructs a Controller.
func NewController(logger *slog.Logger, svc ServicePort, reauth Reauthenticator) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{logger: logger, svc: svc, reauth: reauth}
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns a copy of the pending mutation, nil when idle.
func (c *Controller) Pending() *PendingMutation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	p := *c.pending
	return &p
}

// RequestDelete captures a deletion intent for later confirmation. No
// backend call happens here. Returns shared.ErrMutationPending when another
// mutation is already in flight.
func (c *Controller) RequestDelete(operatorID string, target DeleteTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return shared.ErrMutationPending
	}
	c.pending = &PendingMutation{
		Kind:        KindDelete,
		TargetID:    target.ID,
		TargetEmail: target.Email,
		OperatorID:  operatorID,
		RequestedAt: time.Now(),
	}
	c.state = StateAwaitingConfirmation
	return nil
}

// Cancel clears a pending deletion without touching the backend. Calling it
// while idle is a no-op.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingConfirmation {
		return
	}
	c.pending = nil
	c.state = StateIdle
}

// Confirm executes a pending deletion after re-proving the operator's
// identity. An absent or invalid proof aborts silently: the pending mutation
// is cleared, the backend is never called, and no notification is emitted.
// Once the proof is accepted the delete commits and exactly one success or
// failure notification follows.
func (c *Controller) Confirm(ctx context.Context, proof string, notify shared.Notifier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingConfirmation || c.pending == nil {
		return ErrNoPendingMutation
	}
	pending := *c.pending

	if proof == "" || c.reauth.VerifyPassword(ctx, pending.OperatorID, proof) != nil {
		c.pending = nil
		c.state = StateIdle
		return ErrAuthenticationDeclined
	}

	c.state = StateCommitting
	defer func() {
		c.pending = nil
		c.state = StateIdle
	}()

	if err := c.svc.DeleteAccount(ctx, pending.TargetID); err != nil {
		c.logger.Error("delete account", slog.String("target", pending.TargetID), slog.Any("error", err))
		notify.Failure("Could not delete " + pending.TargetEmail + ". " + shared.UserSafeMessage(err))
		return err
	}
	notify.Success("Account " + pending.TargetEmail + " deleted.")
	return nil
}

// UpdateProfile commits a display-name change. No re-authentication gate.
func (c *Controller) UpdateProfile(ctx context.Context, operatorID, displayName string, notify shared.Notifier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		notify.Failure(shared.UserSafeMessage(shared.ErrMutationPending))
		return shared.ErrMutationPending
	}

	c.pending = &PendingMutation{
		Kind:        KindProfileUpdate,
		TargetID:    operatorID,
		OperatorID:  operatorID,
		RequestedAt: time.Now(),
	}
	c.state = StateCommitting
	defer func() {
		c.pending = nil
		c.state = StateIdle
	}()

	if err := c.svc.UpdateProfile(ctx, operatorID, displayName); err != nil {
		c.logger.Error("update profile", slog.String("account", operatorID), slog.Any("error", err))
		notify.Failure(shared.UserSafeMessage(err))
		return err
	}
	notify.Success("Profile updated.")
	return nil
}

// ChangePassword commits a password change. The confirmation match is a
// local invariant: on mismatch the backend is never contacted and exactly
// one failure notification is emitted. The current-password check is
// delegated to the service.
func (c *Controller) ChangePassword(ctx context.Context, operatorID, currentPassword, newPassword, confirmPassword string, notify shared.Notifier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		notify.Failure(shared.UserSafeMessage(shared.ErrMutationPending))
		return shared.ErrMutationPending
	}

	if newPassword != confirmPassword {
		notify.Failure(shared.UserSafeMessage(shared.ErrPasswordMismatch))
		return shared.ErrPasswordMismatch
	}

	c.pending = &PendingMutation{
		Kind:        KindPasswordChange,
		TargetID:    operatorID,
		OperatorID:  operatorID,
		RequestedAt: time.Now(),
	}
	c.state = StateCommitting
	defer func() {
		c.pending = nil
		c.state = StateIdle
	}()

	if err := c.svc.ChangePassword(ctx, operatorID, currentPassword, newPassword); err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			c.logger.Error("change password", slog.String("account", operatorID), slog.Any("error", err))
		}
		notify.Failure(passwordFailureMessage(err))
		return err
	}
	notify.Success("Password changed.")
	return nil
}

func passwordFailureMessage(err error) string {
	if errors.Is(err, shared.ErrInvalidCredentials) {
		return "Current password is incorrect."
	}
	return shared.UserSafeMessage(err)
}
