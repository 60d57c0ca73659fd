package account_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hotwellkz/app122/internal/account"
	"github.com/hotwellkz/app122/internal/shared"
	_ "github.com/hotwellkz/app122/testing"
)

type stubRepo struct {
	account     *account.Account
	findErr     error
	deleteErr   error
	updatedName string
	updatedHash string
	deletedID   string
}

func (s *stubRepo) FindByID(ctx context.Context, id string) (*account.Account, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.account == nil || s.account.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.account, nil
}

func (s *stubRepo) Delete(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletedID = id
	return nil
}

func (s *stubRepo) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	s.updatedName = displayName
	return nil
}

func (s *stubRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	s.updatedHash = passwordHash
	return nil
}

type stubPublisher struct {
	calls int
	err   error
}

func (s *stubPublisher) PublishChange(ctx context.Context) error {
	s.calls++
	return s.err
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(hash)
}

func TestDeleteAccountPublishesChange(t *testing.T) {
	repo := &stubRepo{account: &account.Account{ID: "acc-1"}}
	pub := &stubPublisher{}
	svc := account.NewService(nil, repo, pub)

	require.NoError(t, svc.DeleteAccount(context.Background(), "acc-1"))
	require.Equal(t, "acc-1", repo.deletedID)
	require.Equal(t, 1, pub.calls)
}

func TestDeleteAccountFailureDoesNotPublish(t *testing.T) {
	repo := &stubRepo{deleteErr: shared.ErrNotFound}
	pub := &stubPublisher{}
	svc := account.NewService(nil, repo, pub)

	err := svc.DeleteAccount(context.Background(), "acc-1")
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Zero(t, pub.calls)
}

func TestDeleteAccountPublishFailureIsSwallowed(t *testing.T) {
	repo := &stubRepo{account: &account.Account{ID: "acc-1"}}
	pub := &stubPublisher{err: errors.New("redis down")}
	svc := account.NewService(nil, repo, pub)

	// The mutation committed; a lost event is healed by reconciliation.
	require.NoError(t, svc.DeleteAccount(context.Background(), "acc-1"))
}

func TestUpdateProfilePublishesChange(t *testing.T) {
	repo := &stubRepo{account: &account.Account{ID: "acc-1"}}
	pub := &stubPublisher{}
	svc := account.NewService(nil, repo, pub)

	require.NoError(t, svc.UpdateProfile(context.Background(), "acc-1", "New Name"))
	require.Equal(t, "New Name", repo.updatedName)
	require.Equal(t, 1, pub.calls)
}

func TestServiceChangePasswordWrongCurrent(t *testing.T) {
	repo := &stubRepo{account: &account.Account{ID: "acc-1", PasswordHash: hashed(t, "correct-pass")}}
	svc := account.NewService(nil, repo, &stubPublisher{})

	err := svc.ChangePassword(context.Background(), "acc-1", "wrong-pass", "brand-new-pass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	require.Empty(t, repo.updatedHash)
}

func TestChangePasswordStoresNewHash(t *testing.T) {
	repo := &stubRepo{account: &account.Account{ID: "acc-1", PasswordHash: hashed(t, "correct-pass")}}
	pub := &stubPublisher{}
	svc := account.NewService(nil, repo, pub)

	require.NoError(t, svc.ChangePassword(context.Background(), "acc-1", "correct-pass", "brand-new-pass"))
	require.NotEmpty(t, repo.updatedHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.updatedHash), []byte("brand-new-pass")))
	// Password changes are not roster visible.
	require.Zero(t, pub.calls)
}
