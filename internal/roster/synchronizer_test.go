package roster_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hotwellkz/app122/internal/roster"
	_ "github.com/hotwellkz/app122/testing"
)

type stubLister struct {
	mu      sync.Mutex
	records []roster.UserRecord
	err     error
	calls   int
}

func (s *stubLister) ListAccounts(ctx context.Context) ([]roster.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]roster.UserRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *stubLister) set(records []roster.UserRecord) {
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

func (s *stubLister) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func record(id, email, name string) roster.UserRecord {
	return roster.UserRecord{ID: id, Email: email, DisplayName: name, CreatedAt: time.Now()}
}

func newSynchronizer(t *testing.T, store roster.Lister) (*roster.Synchronizer, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	syncer := roster.NewSynchronizer(nil, store, client, "roster.test")
	t.Cleanup(syncer.Stop)
	return syncer, mr, client
}

func TestStartLoadsInitialSnapshot(t *testing.T) {
	store := &stubLister{records: []roster.UserRecord{
		record("u1", "ana@test.local", "Ana"),
		record("u2", "bruno@test.local", "Bruno"),
	}}
	syncer, _, _ := newSynchronizer(t, store)

	require.NoError(t, syncer.Start(context.Background()))
	require.True(t, syncer.Running())
	require.NoError(t, syncer.Err())
	require.Equal(t, 2, syncer.Size())
	require.False(t, syncer.LastSync().IsZero())
}

func TestFilterMatchesEmailAndName(t *testing.T) {
	store := &stubLister{records: []roster.UserRecord{
		record("u1", "ana@test.local", "Ana Souza"),
		record("u2", "bruno@test.local", "Bruno"),
		record("u3", "carla@other.io", "CARLA"),
	}}
	syncer, _, _ := newSynchronizer(t, store)
	require.NoError(t, syncer.Start(context.Background()))

	require.Len(t, syncer.Filter(""), 3)

	byEmail := syncer.Filter("TEST.LOCAL")
	require.Len(t, byEmail, 2)
	require.Equal(t, "u1", byEmail[0].ID)
	require.Equal(t, "u2", byEmail[1].ID)

	byName := syncer.Filter("carla")
	require.Len(t, byName, 1)
	require.Equal(t, "u3", byName[0].ID)

	require.Empty(t, syncer.Filter("zzz"))
}

func TestFilterPreservesBackingOrder(t *testing.T) {
	store := &stubLister{records: []roster.UserRecord{
		record("u3", "zoe@test.local", "Zoe"),
		record("u1", "ana@test.local", "Ana"),
		record("u2", "maria@test.local", "Maria"),
	}}
	syncer, _, _ := newSynchronizer(t, store)
	require.NoError(t, syncer.Start(context.Background()))

	got := syncer.Filter("test.local")
	require.Len(t, got, 3)
	require.Equal(t, []string{got[0].ID, got[1].ID, got[2].ID}, []string{"u3", "u1", "u2"})
}

func TestChangeEventReplacesSnapshot(t *testing.T) {
	store := &stubLister{records: []roster.UserRecord{
		record("u1", "ana@test.local", "Ana"),
	}}
	syncer, mr, _ := newSynchronizer(t, store)
	require.NoError(t, syncer.Start(context.Background()))
	require.Equal(t, 1, syncer.Size())

	store.set([]roster.UserRecord{
		record("u2", "bruno@test.local", "Bruno"),
		record("u3", "carla@test.local", "Carla"),
	})
	mr.Publish("roster.test", "changed")

	require.Eventually(t, func() bool {
		return syncer.Size() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// The old record is gone: a refresh replaces the set, it never merges.
	_, ok := syncer.Find("u1")
	require.False(t, ok)
	_, ok = syncer.Find("u2")
	require.True(t, ok)
}

func TestStartCancelsPriorSubscription(t *testing.T) {
	store := &stubLister{records: []roster.UserRecord{
		record("u1", "ana@test.local", "Ana"),
	}}
	syncer, mr, client := newSynchronizer(t, store)

	require.NoError(t, syncer.Start(context.Background()))
	require.NoError(t, syncer.Start(context.Background()))

	// Exactly one live subscriber regardless of how often Start ran.
	require.Eventually(t, func() bool {
		subs, err := client.PubSubNumSub(context.Background(), "roster.test").Result()
		return err == nil && subs["roster.test"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	store.set([]roster.UserRecord{
		record("u1", "ana@test.local", "Ana"),
		record("u2", "bruno@test.local", "Bruno"),
	})
	mr.Publish("roster.test", "changed")
	require.Eventually(t, func() bool {
		return syncer.Size() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	store := &stubLister{records: []roster.UserRecord{
		record("u1", "ana@test.local", "Ana"),
	}}
	syncer, _, _ := newSynchronizer(t, store)
	require.NoError(t, syncer.Start(context.Background()))

	syncer.Stop()
	syncer.Stop()
	require.False(t, syncer.Running())

	// Stopping a never-started instance is also a no-op.
	fresh := roster.NewSynchronizer(nil, store, nil, "roster.test")
	fresh.Stop()
}

func TestStoreFailureDegradesToEmpty(t *testing.T) {
	store := &stubLister{records: []roster.UserRecord{
		record("u1", "ana@test.local", "Ana"),
	}}
	syncer, mr, _ := newSynchronizer(t, store)
	require.NoError(t, syncer.Start(context.Background()))
	require.Equal(t, 1, syncer.Size())

	boom := errors.New("store down")
	store.fail(boom)
	mr.Publish("roster.test", "changed")

	require.Eventually(t, func() bool {
		return syncer.Err() != nil
	}, 2*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, syncer.Err(), boom)
	require.Zero(t, syncer.Size())
	require.Empty(t, syncer.Filter(""))
}

func TestInitialLoadFailureReturnsError(t *testing.T) {
	boom := errors.New("store down")
	store := &stubLister{err: boom}
	syncer, _, _ := newSynchronizer(t, store)

	err := syncer.Start(context.Background())
	require.ErrorIs(t, err, boom)
	require.False(t, syncer.Running())
	require.Zero(t, syncer.Size())
}

func TestWatchDeliversLatestSnapshot(t *testing.T) {
	store := &stubLister{records: []roster.UserRecord{
		record("u1", "ana@test.local", "Ana"),
	}}
	syncer, mr, _ := newSynchronizer(t, store)
	require.NoError(t, syncer.Start(context.Background()))

	ch, cancel := syncer.Watch()
	defer cancel()

	store.set([]roster.UserRecord{
		record("u1", "ana@test.local", "Ana"),
		record("u2", "bruno@test.local", "Bruno"),
	})
	mr.Publish("roster.test", "changed")

	select {
	case snap := <-ch:
		require.Len(t, snap.Records, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	cancel()
	cancel() // second cancel must not panic
}

func TestFilterFoldsUnicode(t *testing.T) {
	store := &stubLister{records: []roster.UserRecord{
		record("u1", "sigma@test.local", "ΣΊΣΥΦΟΣ"),
	}}
	syncer, _, _ := newSynchronizer(t, store)
	require.NoError(t, syncer.Start(context.Background()))

	require.Len(t, syncer.Filter("σίσυ"), 1)
	require.Len(t, syncer.Filter("σύφ"), 0)
}
