package tokens

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a token slot.
type State int32

const (
	// StateEmpty means the slot holds no token and no acquisition has
	// succeeded yet.
	StateEmpty State = iota
	// StateAcquiring means an acquisition is in flight with no servable
	// token cached.
	StateAcquiring
	// StateValid means the cached token is fresh.
	StateValid
	// StateRefreshing means a renewal is in flight while the old token
	// stays servable.
	StateRefreshing
	// StateWarning means the cached token passed its warning threshold
	// without a successful refresh but is still servable.
	StateWarning
	// StateExpired means the cached token passed its expiry; reads fail
	// until a new acquisition succeeds.
	StateExpired
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateAcquiring:
		return "acquiring"
	case StateValid:
		return "valid"
	case StateRefreshing:
		return "refreshing"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// slot is an independently scheduled token lifecycle unit. The current
// token pointer is the only shared mutable state; it is read atomically
// by GetToken and swapped atomically on acquisition success. The
// acquisition mutex guarantees at most one in-flight provider call per
// slot.
type slot struct {
	name   string
	scopes []string

	current atomic.Pointer[AccessToken]
	state   atomic.Int32

	acqMu sync.Mutex

	warned       atomic.Bool
	expiredFired atomic.Bool

	// wake nudges the scheduler after an out-of-band install, e.g. a
	// reader-triggered acquisition on an empty slot.
	wake chan struct{}
}

func newSlot(name string, scopes []string) *slot {
	return &slot{
		name:   name,
		scopes: append([]string(nil), scopes...),
		wake:   make(chan struct{}, 1),
	}
}

// run is the slot's refresh scheduler. It acquires a first token
// eagerly, then sleeps until the refresh point of the current token,
// retrying failed attempts on capped exponential backoff until either a
// fresh token is installed or the old one expires.
func (s *slot) run(m *Manager) {
	defer m.wg.Done()

	backoff := m.backoffInitial
	var retryAt time.Time

	for {
		if m.ctx.Err() != nil {
			return
		}

		tok := s.current.Load()
		now := m.clock.Now()

		if tok == nil || !tok.Valid(now) {
			if tok != nil && s.expiredFired.CompareAndSwap(false, true) {
				s.state.Store(int32(StateExpired))
				m.emit(Event{Type: EventExpired, Slot: s.name, At: now, ExpiresAt: tok.ExpiresAt})
			}
			if now.Before(retryAt) {
				if !s.sleepUntil(m, retryAt) {
					return
				}
				continue
			}
			if _, err := s.acquire(m.ctx, m); err != nil {
				retryAt = m.clock.Now().Add(m.jitter(backoff))
				backoff = min(backoff*2, m.backoffMax)
				continue
			}
			backoff = m.backoffInitial
			retryAt = time.Time{}
			continue
		}

		refreshAt := m.refreshAt(*tok)
		warnAt := m.warnAt(*tok)

		if !now.Before(warnAt) && s.warned.CompareAndSwap(false, true) {
			s.state.Store(int32(StateWarning))
			m.emit(Event{Type: EventWarning, Slot: s.name, At: now, ExpiresAt: tok.ExpiresAt})
		}

		if now.Before(refreshAt) {
			if !s.sleepUntil(m, refreshAt) {
				return
			}
			continue
		}

		if now.Before(retryAt) {
			next := retryAt
			if !s.warned.Load() && warnAt.After(now) && warnAt.Before(next) {
				next = warnAt
			}
			if tok.ExpiresAt.Before(next) {
				next = tok.ExpiresAt
			}
			if !s.sleepUntil(m, next) {
				return
			}
			continue
		}

		if _, err := s.acquire(m.ctx, m); err != nil {
			if m.logger != nil {
				m.logger.Printf("tokens: could not refresh still valid token for slot %q: %v", s.name, err)
			}
			retryAt = m.clock.Now().Add(m.jitter(backoff))
			backoff = min(backoff*2, m.backoffMax)
			continue
		}
		backoff = m.backoffInitial
		retryAt = time.Time{}
	}
}

// acquire performs one provider call for this slot and installs the
// result. Acquisitions are strictly serialized per slot; a caller that
// lost the race returns the token the winner installed.
func (s *slot) acquire(ctx context.Context, m *Manager) (AccessToken, error) {
	s.acqMu.Lock()
	defer s.acqMu.Unlock()

	if err := m.ctx.Err(); err != nil {
		return AccessToken{}, ErrShutdown
	}

	now := m.clock.Now()
	prev := s.current.Load()

	// Another acquisition may have installed a usable token while we
	// waited for the lock.
	if prev != nil && prev.Valid(now) && now.Before(m.refreshAt(*prev)) {
		return *prev, nil
	}

	if prev != nil && prev.Valid(now) {
		s.state.Store(int32(StateRefreshing))
	} else {
		s.state.Store(int32(StateAcquiring))
	}

	tok, err := m.provider.Acquire(ctx, s.scopes)
	if err != nil {
		m.emit(Event{Type: EventProviderUnavailable, Slot: s.name, At: m.clock.Now(), Err: err})
		s.syncState(m)
		return AccessToken{}, err
	}

	now = m.clock.Now()
	if !tok.Valid(now) {
		err := fmt.Errorf("tokens: provider returned a token expiring at %s, already past", tok.ExpiresAt.Format(time.RFC3339))
		m.emit(Event{Type: EventProviderUnavailable, Slot: s.name, At: now, Err: err})
		s.syncState(m)
		return AccessToken{}, err
	}

	s.install(m, tok, prev, now)
	return tok, nil
}

// install atomically swaps in the new token. Readers either see the
// fully-old or fully-new token, never a mixture.
func (s *slot) install(m *Manager, tok AccessToken, prev *AccessToken, now time.Time) {
	fresh := tok
	s.current.Store(&fresh)
	s.warned.Store(false)
	s.expiredFired.Store(false)
	s.state.Store(int32(StateValid))

	eventType := EventAcquired
	if prev != nil && prev.Valid(now) {
		eventType = EventRefreshed
	}
	m.emit(Event{Type: eventType, Slot: s.name, At: now, ExpiresAt: tok.ExpiresAt})

	if m.logger != nil {
		m.logger.Printf("tokens: slot %q obtained token expiring at %s", s.name, tok.ExpiresAt.Format(time.RFC3339))
	}

	// Nudge the scheduler so it recomputes its timers for the new token.
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// syncState recomputes the externally visible state after a failed
// acquisition.
func (s *slot) syncState(m *Manager) {
	tok := s.current.Load()
	now := m.clock.Now()
	switch {
	case tok == nil:
		s.state.Store(int32(StateEmpty))
	case !tok.Valid(now):
		s.state.Store(int32(StateExpired))
	case s.warned.Load() || !now.Before(m.warnAt(*tok)):
		s.state.Store(int32(StateWarning))
	default:
		s.state.Store(int32(StateValid))
	}
}

// sleepUntil parks the scheduler until at, an install nudge, or
// shutdown. It reports false when the manager is shutting down.
func (s *slot) sleepUntil(m *Manager, at time.Time) bool {
	d := at.Sub(m.clock.Now())
	if d <= 0 {
		return true
	}
	select {
	case <-m.ctx.Done():
		return false
	case <-m.clock.After(d):
		return true
	case <-s.wake:
		return true
	}
}
