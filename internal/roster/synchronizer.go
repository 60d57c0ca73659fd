package roster

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
)

// ChangeChannel is the default pub/sub channel carrying roster change events.
const ChangeChannel = "roster.changed"

// ErrSubscriptionLost indicates the live feed dropped. The roster shows an
// empty degraded view until a caller re-subscribes explicitly.
var ErrSubscriptionLost = errors.New("roster: subscription lost")

// Synchronizer maintains an in-memory mirror of the account collection. The
// mirror is refreshed as a whole whenever a change event arrives on the feed:
// each refresh replaces the entire backing set with one consistent store
// read, never a partial merge.
//
// A Synchronizer owns at most one live subscription. Start cancels any prior
// subscription before establishing a new one, and Stop is idempotent.
type Synchronizer struct {
	logger  *slog.Logger
	store   Lister
	feed    *redis.Client
	channel string

	mu       sync.RWMutex
	records  []UserRecord
	lastSync time.Time
	lastErr  error
	running  bool
	stopping bool

	pubsub *redis.PubSub
	done   chan struct{}

	reload singleflight.Group

	watchMu  sync.Mutex
	watchers map[chan Snapshot]struct{}

	// onSwap, when set, observes every successful snapshot swap. Used for
	// metrics.
	onSwap func(size int)
}

// NewSynchronizer constructs a Synchronizer over the given store and feed.
// An empty channel selects ChangeChannel.
func NewSynchronizer(logger *slog.Logger, store Lister, feed *redis.Client, channel string) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = ChangeChannel
	}
	return &Synchronizer{
		logger:   logger,
		store:    store,
		feed:     feed,
		channel:  channel,
		watchers: make(map[chan Snapshot]struct{}),
	}
}

// SetSwapObserver registers a callback invoked after each snapshot swap.
func (s *Synchronizer) SetSwapObserver(fn func(size int)) {
	s.mu.Lock()
	s.onSwap = fn
	s.mu.Unlock()
}

// Start establishes the live subscription and loads the initial snapshot.
// Any previously active subscription is cancelled first, so re-activating a
// screen can never leak a channel or double-deliver pushes. On failure the
// Synchronizer is left in a degraded empty state; it never retries on its
// own.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.Stop()

	pubsub := s.feed.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		s.degrade(err)
		return ErrSubscriptionLost
	}

	if err := s.refresh(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.pubsub = pubsub
	s.done = done
	s.running = true
	s.stopping = false
	s.lastErr = nil
	s.mu.Unlock()

	go s.consume(pubsub.Channel(), done)
	return nil
}

// Stop cancels the live subscription and releases its channel. Safe to call
// multiple times and on a Synchronizer that never started.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopping = true
	pubsub := s.pubsub
	done := s.done
	s.pubsub = nil
	s.done = nil
	s.mu.Unlock()

	_ = pubsub.Close()
	<-done

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()
}

// Running reports whether a live subscription is active.
func (s *Synchronizer) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Err returns the error that degraded the roster, nil when healthy.
func (s *Synchronizer) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// LastSync returns the time of the most recent snapshot swap.
func (s *Synchronizer) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// Size returns the number of records in the current backing set.
func (s *Synchronizer) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Filter returns the records whose email or display name contains term,
// case-insensitively, preserving backing-set order. An empty term returns
// the full set. Filter never mutates the backing set; callers own the
// returned slice.
func (s *Synchronizer) Filter(term string) []UserRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := fold(strings.TrimSpace(term))
	out := make([]UserRecord, 0, len(s.records))
	for _, rec := range s.records {
		if needle == "" ||
			strings.Contains(fold(rec.Email), needle) ||
			strings.Contains(fold(rec.DisplayName), needle) {
			out = append(out, rec)
		}
	}
	return out
}

// Find returns the record with the given ID from the current backing set.
func (s *Synchronizer) Find(id string) (UserRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, true
		}
	}
	return UserRecord{}, false
}

// Watch registers a snapshot watcher. Each successful swap delivers a
// Snapshot; slow watchers only ever miss intermediate snapshots, never the
// latest. The returned cancel func releases the watcher and is idempotent.
func (s *Synchronizer) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.watchMu.Lock()
	s.watchers[ch] = struct{}{}
	s.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, ch)
			s.watchMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Synchronizer) consume(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for range ch {
		if err := s.refresh(context.Background()); err != nil {
			s.logger.Warn("roster refresh", slog.Any("error", err))
		}
	}

	// The message channel closed. When we initiated the close via Stop this
	// is normal teardown; otherwise the feed dropped underneath us.
	s.mu.Lock()
	lost := !s.stopping
	if lost {
		s.running = false
		s.pubsub = nil
		s.records = nil
		s.lastErr = ErrSubscriptionLost
	}
	s.mu.Unlock()
	if lost {
		s.logger.Error("roster subscription lost")
	}
}

// refresh reloads the full snapshot and swaps it in atomically. Overlapping
// change events coalesce into a single store read.
func (s *Synchronizer) refresh(ctx context.Context) error {
	_, err, _ := s.reload.Do("snapshot", func() (any, error) {
		records, err := s.store.ListAccounts(ctx)
		if err != nil {
			s.degrade(err)
			return nil, err
		}

		snap := Snapshot{Records: records, Taken: time.Now()}
		s.mu.Lock()
		s.records = records
		s.lastSync = snap.Taken
		s.lastErr = nil
		onSwap := s.onSwap
		s.mu.Unlock()

		if onSwap != nil {
			onSwap(len(records))
		}
		s.broadcast(snap)
		return nil, nil
	})
	return err
}

func (s *Synchronizer) degrade(err error) {
	s.mu.Lock()
	s.records = nil
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Synchronizer) broadcast(snap Snapshot) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- snap:
		default:
			// Watcher still holds an older snapshot; replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// fold lowercases with full Unicode case folding for the substring match.
func fold(s string) string {
	return cases.Fold().String(s)
}
