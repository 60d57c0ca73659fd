package roster_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hotwellkz/app122/internal/account"
	"github.com/hotwellkz/app122/internal/roster"
	"github.com/hotwellkz/app122/internal/shared"
	"github.com/hotwellkz/app122/internal/view"
	_ "github.com/hotwellkz/app122/testing"
)

type acceptAllReauth struct{}

func (acceptAllReauth) VerifyPassword(ctx context.Context, accountID, password string) error {
	if password == "letmein1" {
		return nil
	}
	return shared.ErrInvalidCredentials
}

type rosterFixture struct {
	router   chi.Router
	store    *stubLister
	syncer   *roster.Synchronizer
	svc      *stubMutator
	sessions *shared.SessionManager
}

type stubMutator struct {
	deleteCalls int
	deletedID   string
	deleteErr   error
}

func (s *stubMutator) DeleteAccount(ctx context.Context, id string) error {
	s.deleteCalls++
	s.deletedID = id
	return s.deleteErr
}

func (s *stubMutator) UpdateProfile(ctx context.Context, id, displayName string) error { return nil }

func (s *stubMutator) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	return nil
}

func newRosterFixture(t *testing.T) *rosterFixture {
	t.Helper()
	store := &stubLister{records: []roster.UserRecord{
		record("u1", "ana@test.local", "Ana"),
		record("u2", "bruno@test.local", "Bruno"),
	}}
	syncer, _, client := newSynchronizer(t, store)
	require.NoError(t, syncer.Start(context.Background()))

	sessions := newSessionManager(t, client)
	csrf := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := &stubMutator{}
	controller := account.NewController(logger, svc, acceptAllReauth{})
	handler := roster.NewHandler(logger, syncer, controller, templates, csrf)

	router := chi.NewRouter()
	router.Route("/users", handler.MountRoutes)
	return &rosterFixture{router: router, store: store, syncer: syncer, svc: svc, sessions: sessions}
}

func newSessionManager(t *testing.T, client *redis.Client) *shared.SessionManager {
	t.Helper()
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
}

// do runs a request through the router with a signed-in session attached.
func (f *rosterFixture) do(t *testing.T, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser("op-1")
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func TestListUsersRendersRoster(t *testing.T) {
	f := newRosterFixture(t)

	res := f.do(t, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "ana@test.local")
	require.Contains(t, res.Body.String(), "bruno@test.local")
}

func TestListUsersFiltersByQuery(t *testing.T) {
	f := newRosterFixture(t)

	res := f.do(t, http.MethodGet, "/users?q=BRUNO", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "bruno@test.local")
	require.NotContains(t, res.Body.String(), "ana@test.local")
}

func TestDeleteShowsConfirmationPrompt(t *testing.T) {
	f := newRosterFixture(t)

	res := f.do(t, http.MethodPost, "/users/u1/delete", url.Values{})
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "ana@test.local")
	require.Contains(t, res.Body.String(), "/users/u1/destroy")
	require.Zero(t, f.svc.deleteCalls, "prompt must not delete anything")
}

func TestDestroyWithValidProofDeletes(t *testing.T) {
	f := newRosterFixture(t)

	f.do(t, http.MethodPost, "/users/u1/delete", url.Values{})
	res := f.do(t, http.MethodPost, "/users/u1/destroy", url.Values{"password": {"letmein1"}})

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, 1, f.svc.deleteCalls)
	require.Equal(t, "u1", f.svc.deletedID)
}

func TestDestroyWithBadProofAbortsSilently(t *testing.T) {
	f := newRosterFixture(t)

	f.do(t, http.MethodPost, "/users/u1/delete", url.Values{})
	res := f.do(t, http.MethodPost, "/users/u1/destroy", url.Values{"password": {"wrong"}})

	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), "Account was not deleted")
	require.Zero(t, f.svc.deleteCalls)
}

func TestFailedDeleteKeepsRosterEntry(t *testing.T) {
	f := newRosterFixture(t)
	f.svc.deleteErr = errors.New("accounts are busy")

	f.do(t, http.MethodPost, "/users/u1/delete", url.Values{})
	res := f.do(t, http.MethodPost, "/users/u1/destroy", url.Values{"password": {"letmein1"}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, 1, f.svc.deleteCalls)

	// The mirror only changes on a change event, so the failed commit must
	// leave the target in place.
	_, ok := f.syncer.Find("u1")
	require.True(t, ok)

	res = f.do(t, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "ana@test.local")

	// The controller is back at rest: a fresh commit goes through once the
	// backend recovers.
	f.svc.deleteErr = nil
	f.do(t, http.MethodPost, "/users/u1/delete", url.Values{})
	res = f.do(t, http.MethodPost, "/users/u1/destroy", url.Values{"password": {"letmein1"}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, 2, f.svc.deleteCalls)
}

func TestCancelReturnsToList(t *testing.T) {
	f := newRosterFixture(t)

	f.do(t, http.MethodPost, "/users/u1/delete", url.Values{})
	res := f.do(t, http.MethodPost, "/users/u1/cancel", url.Values{})

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Zero(t, f.svc.deleteCalls)

	// A fresh delete can start immediately after cancelling.
	res = f.do(t, http.MethodPost, "/users/u2/delete", url.Values{})
	require.Equal(t, http.StatusOK, res.Code)
}

func TestDestroyRecapturesLostIntent(t *testing.T) {
	f := newRosterFixture(t)

	// No prior delete request: the handler recaptures the intent from the
	// posted target before confirming.
	res := f.do(t, http.MethodPost, "/users/u2/destroy", url.Values{"password": {"letmein1"}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "u2", f.svc.deletedID)
}

func TestDeleteUnknownUserRedirects(t *testing.T) {
	f := newRosterFixture(t)

	res := f.do(t, http.MethodPost, "/users/nope/delete", url.Values{})
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/users", res.Header().Get("Location"))
}
