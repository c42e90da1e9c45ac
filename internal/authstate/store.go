// Package authstate holds the authentication state of one page load and the
// protocol that moves it: the boot check, the one-time OAuth exchange, status
// re-checks and logout.
//
// A Store has a single writer discipline: only its own methods change state,
// every transition is published as a Snapshot, and the two pending flags
// (isInitializing and oauthInFlight) are always released in deferred steps.
package authstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/stylefront/internal/envutil"
	"github.com/dgellow/stylefront/internal/location"
	"github.com/dgellow/stylefront/internal/log"
	"github.com/dgellow/stylefront/internal/sessionapi"
	"github.com/dgellow/stylefront/internal/usercache"
	"golang.org/x/sync/singleflight"
)

// DefaultLandingPath is where the identity provider sends visitors back.
const DefaultLandingPath = "/profile"

// Store is the auth state of one page load.
type Store struct {
	client      sessionapi.SessionClient
	landingPath string
	observer    Observer
	cache       usercache.Cache
	cacheKey    string
	now         func() time.Time
	strict      bool

	// notifyMu serializes transitions so observers see them in order.
	notifyMu sync.Mutex

	mu        sync.Mutex
	st        state
	version   uint64
	userEpoch uint64
	booted    bool
	exchanged bool
	disposed  bool
	changed   chan struct{}
	subs      []subscriber
	nextSub   uint64

	lifetime context.Context
	cancel   context.CancelFunc
	verifies singleflight.Group
}

type subscriber struct {
	id uint64
	fn func(Snapshot)
}

// Option configures a Store.
type Option func(*Store)

// WithLandingPath sets the OAuth landing path. Boot skips the verify call
// when a session token arrives on this path.
func WithLandingPath(path string) Option {
	return func(s *Store) {
		if path != "" {
			s.landingPath = path
		}
	}
}

// WithObserver replaces the default LogObserver.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithCache attaches the non-authoritative user cache.
func WithCache(c usercache.Cache) Option {
	return func(s *Store) {
		s.cache = c
	}
}

// WithCacheKey sets the key used with the user cache, usually the browser ID.
func WithCacheKey(key string) Option {
	return func(s *Store) {
		s.cacheKey = key
	}
}

// WithClock sets the time source used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithStrictInvariants makes violated invariants panic. It defaults to on in
// development (STYLEFRONT_ENV=dev) and off otherwise.
func WithStrictInvariants(strict bool) Option {
	return func(s *Store) {
		s.strict = strict
	}
}

// New creates a store in the Booting phase.
func New(client sessionapi.SessionClient, opts ...Option) *Store {
	lifetime, cancel := context.WithCancel(context.Background())
	s := &Store{
		client:      client,
		landingPath: DefaultLandingPath,
		observer:    LogObserver{},
		now:         time.Now,
		strict:      envutil.IsDev(),
		st:          state{isInitializing: true},
		changed:     make(chan struct{}),
		lifetime:    lifetime,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.snapshot(s.version)
}

// LandingPath returns the configured OAuth landing path.
func (s *Store) LandingPath() string {
	return s.landingPath
}

// Subscribe registers fn for every transition. fn runs outside the state
// lock but must not call mutating Store methods synchronously.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Wait blocks until pred holds for a snapshot or ctx is done.
func (s *Store) Wait(ctx context.Context, pred func(Snapshot) bool) (Snapshot, error) {
	for {
		s.mu.Lock()
		snap := s.st.snapshot(s.version)
		changed := s.changed
		s.mu.Unlock()

		if pred(snap) {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Dispose cancels in-flight network calls and drops subscribers. Calls that
// were running still release their flags when they settle.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.subs = nil
	s.mu.Unlock()

	s.cancel()
}

// Disposed reports whether Dispose has been called.
func (s *Store) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// BootOutcome describes what Boot did.
type BootOutcome struct {
	Token        string
	TokenPresent bool

	// SkippedVerify is set when a token arrived on the landing path, in
	// which case the caller is expected to start the exchange.
	SkippedVerify bool

	Verified bool
	User     *sessionapi.User
}

// Boot runs the start-of-page protocol for loc. It runs at most once per
// store and always leaves isInitializing false when it returns.
func (s *Store) Boot(ctx context.Context, loc location.Location) (BootOutcome, error) {
	s.mu.Lock()
	switch {
	case s.disposed:
		s.mu.Unlock()
		return BootOutcome{}, ErrDisposed
	case s.booted:
		s.mu.Unlock()
		return BootOutcome{}, ErrAlreadyBooted
	}
	s.booted = true
	s.mu.Unlock()

	callCtx, cancel := s.detach(ctx)
	defer cancel()

	s.loadCachedUser(callCtx)

	token, present := location.SessionToken(loc)
	out := BootOutcome{Token: token, TokenPresent: present}

	if present && loc.Path == s.landingPath {
		out.SkippedVerify = true
		s.update(CauseBootSkipped, func(st *state) bool {
			st.isInitializing = false
			return true
		})
		return out, nil
	}

	defer s.update(CauseBootSettled, func(st *state) bool {
		st.isInitializing = false
		return true
	})

	result := s.verify(callCtx, CauseBootVerified)
	out.Verified = result.Valid
	out.User = result.User
	return out, nil
}

// CheckStatus re-verifies the backend session. Concurrent calls share one
// request. It clears isInitializing if the boot check has not yet done so.
func (s *Store) CheckStatus(ctx context.Context) bool {
	callCtx, cancel := s.detach(ctx)
	defer cancel()

	defer s.update(CauseStatusChecked, func(st *state) bool {
		st.isInitializing = false
		return true
	})

	return s.verify(callCtx, CauseStatusChecked).Valid
}

// Logout ends the session remotely, best effort, and always clears the
// local user and the cache entry. The returned error is informational.
func (s *Store) Logout(ctx context.Context) error {
	callCtx, cancel := s.detach(ctx)
	defer cancel()

	defer s.cacheDelete(callCtx)
	defer s.update(CauseLogout, func(st *state) bool {
		st.user = nil
		st.cachedUser = nil
		s.userEpoch++
		return true
	})

	if err := s.client.Logout(callCtx); err != nil {
		log.LogWarnWithFields("authstate", "Remote logout failed, clearing local state anyway", map[string]any{
			"error": err.Error(),
		})
		return fmt.Errorf("remote logout: %w", err)
	}
	return nil
}

// Invalidate drops the local user without calling the session API. It is
// used when the session was ended elsewhere in the same browser; an
// exchange still in flight on this store is then discarded.
func (s *Store) Invalidate() {
	s.update(CauseLogout, func(st *state) bool {
		st.user = nil
		st.cachedUser = nil
		s.userEpoch++
		return true
	})
}

// verify calls VerifySession once for all concurrent callers and applies
// the result.
func (s *Store) verify(ctx context.Context, cause Cause) sessionapi.VerifyResult {
	v, _, _ := s.verifies.Do("verify", func() (any, error) {
		s.mu.Lock()
		epoch := s.userEpoch
		s.mu.Unlock()

		result := s.client.VerifySession(ctx)
		if result.Valid && result.User == nil {
			result = sessionapi.VerifyResult{}
		}

		applied := false
		s.update(cause, func(st *state) bool {
			st.isInitializing = false
			// An exchange or logout that ran meanwhile owns the user.
			if st.oauthInFlight || s.userEpoch != epoch {
				return true
			}
			applied = true
			st.user = result.User
			st.cachedUser = nil
			return true
		})

		if applied {
			if result.Valid {
				s.cachePut(ctx, result.User)
			} else {
				s.cacheDelete(ctx)
			}
		}
		return result, nil
	})
	return v.(sessionapi.VerifyResult)
}

// detach returns a context that keeps ctx's values but not its
// cancellation. It is cancelled by Dispose instead.
func (s *Store) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.lifetime, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

// update applies mutate under the lock and publishes the transition.
// mutate returns false to abort; unchanged state publishes nothing.
func (s *Store) update(cause Cause, mutate func(st *state) bool) (Snapshot, bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.st
	next := prev
	if !mutate(&next) || next == prev {
		snap := prev.snapshot(s.version)
		s.mu.Unlock()
		return snap, false
	}

	if !prev.isInitializing && next.isInitializing {
		if s.strict {
			s.mu.Unlock()
			panic(fmt.Sprintf("authstate: isInitializing set back to true by %s", cause))
		}
		log.LogErrorWithFields("authstate", "Invariant violated: isInitializing set back to true", map[string]any{
			"cause": string(cause),
		})
		next.isInitializing = false
	}

	from := prev.snapshot(s.version)
	s.version++
	s.st = next
	to := next.snapshot(s.version)

	close(s.changed)
	s.changed = make(chan struct{})

	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub.fn)
	}
	s.mu.Unlock()

	s.observer.Transition(Transition{Cause: cause, From: from, To: to, At: s.now()})
	for _, fn := range subs {
		fn(to)
	}
	return to, true
}

func (s *Store) loadCachedUser(ctx context.Context) {
	if s.cache == nil || s.cacheKey == "" {
		return
	}
	user, err := s.cache.Get(ctx, s.cacheKey)
	if err != nil {
		if !errors.Is(err, usercache.ErrMiss) {
			log.LogWarnWithFields("authstate", "Failed to read user cache", map[string]any{
				"error": err.Error(),
			})
		}
		return
	}
	s.update(CauseCacheHint, func(st *state) bool {
		if st.user != nil || !st.isInitializing {
			return false
		}
		st.cachedUser = user
		return true
	})
}

func (s *Store) cachePut(ctx context.Context, user *sessionapi.User) {
	if s.cache == nil || s.cacheKey == "" || user == nil {
		return
	}
	if err := s.cache.Put(ctx, s.cacheKey, user); err != nil {
		log.LogWarnWithFields("authstate", "Failed to write user cache", map[string]any{
			"error": err.Error(),
		})
	}
}

func (s *Store) cacheDelete(ctx context.Context) {
	if s.cache == nil || s.cacheKey == "" {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey); err != nil {
		log.LogWarnWithFields("authstate", "Failed to delete user cache entry", map[string]any{
			"error": err.Error(),
		})
	}
}
