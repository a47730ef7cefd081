package tokens

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	// DefaultRefreshFactor is the fraction of a token's lifetime at which
	// a proactive refresh is scheduled.
	DefaultRefreshFactor = 0.8

	// DefaultWarningFactor is the fraction of a token's lifetime past
	// which an unrefreshed token triggers a warning event.
	DefaultWarningFactor = 0.9

	defaultBackoffInitial = time.Second
	defaultBackoffMax     = 2 * time.Minute
)

// Manager owns named token slots and keeps each slot's access token
// fresh in the background. It is safe for concurrent use: any number of
// goroutines may call GetToken while refreshes are in flight.
//
// Each slot runs its own scheduler. A refresh is attempted at
// issued + refreshFactor * lifetime; if refreshing keeps failing past
// issued + warningFactor * lifetime a warning event fires once, and the
// old token stays servable until its own expiry. Only past expiry do
// reads fail.
type Manager struct {
	provider Provider
	clock    Clock
	observer Observer
	logger   Logger

	refreshFactor float64
	warningFactor float64

	backoffInitial time.Duration
	backoffMax     time.Duration

	mu    sync.Mutex
	slots map[string]*slot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option is a functional option for configuring a Manager.
type Option func(*Manager)

// WithFactors sets the refresh and warning factors. Both must be in
// (0,1) with refresh strictly below warning.
func WithFactors(refresh, warning float64) Option {
	return func(m *Manager) {
		m.refreshFactor = refresh
		m.warningFactor = warning
	}
}

// WithClock sets the clock driving refresh scheduling. Intended for
// deterministic tests.
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithObserver sets the sink receiving slot lifecycle events.
func WithObserver(observer Observer) Option {
	return func(m *Manager) {
		m.observer = observer
	}
}

// WithLogger sets a custom logger for debug output.
// If not set, no logging will occur.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithBackoff sets the initial and maximum delay between retries of a
// failed acquisition.
func WithBackoff(initial, max time.Duration) Option {
	return func(m *Manager) {
		m.backoffInitial = initial
		m.backoffMax = max
	}
}

// NewManager creates a Manager using the given token provider.
//
// Parameters:
//   - provider: performs the credential-for-token exchange
//   - opts: optional configuration (WithFactors, WithClock, WithObserver,
//     WithLogger, WithBackoff)
func NewManager(provider Provider, opts ...Option) (*Manager, error) {
	if provider == nil {
		return nil, fmt.Errorf("tokens: provider is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		provider:       provider,
		clock:          SystemClock(),
		refreshFactor:  DefaultRefreshFactor,
		warningFactor:  DefaultWarningFactor,
		backoffInitial: defaultBackoffInitial,
		backoffMax:     defaultBackoffMax,
		slots:          make(map[string]*slot),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.refreshFactor <= 0 || m.refreshFactor >= 1 ||
		m.warningFactor <= 0 || m.warningFactor >= 1 ||
		m.refreshFactor >= m.warningFactor {
		cancel()
		return nil, fmt.Errorf("tokens: factors must satisfy 0 < refresh (%v) < warning (%v) < 1",
			m.refreshFactor, m.warningFactor)
	}
	if m.backoffInitial <= 0 || m.backoffMax < m.backoffInitial {
		cancel()
		return nil, fmt.Errorf("tokens: invalid backoff bounds [%v, %v]", m.backoffInitial, m.backoffMax)
	}

	return m, nil
}

// RegisterSlot registers a named token slot with the scopes to request
// for it and starts its background refresh scheduler. Registering an
// already-registered name is a no-op; the original scopes stay in
// effect.
func (m *Manager) RegisterSlot(name string, scopes []string) error {
	if name == "" {
		return fmt.Errorf("tokens: slot name is required")
	}
	if err := m.ctx.Err(); err != nil {
		return ErrShutdown
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.slots[name]; ok {
		return nil
	}

	s := newSlot(name, scopes)
	m.slots[name] = s

	m.wg.Add(1)
	go s.run(m)

	if m.logger != nil {
		m.logger.Printf("tokens: registered slot %q with scopes %v", name, scopes)
	}

	return nil
}

// GetToken returns a currently valid token for the named slot.
//
// If the slot holds a token that has not yet expired it is returned
// immediately, even while a refresh is in flight. Otherwise GetToken
// performs at most one acquisition attempt; it never blocks behind a
// network call when cached, still-valid data exists.
func (m *Manager) GetToken(ctx context.Context, name string) (AccessToken, error) {
	s := m.lookup(name)
	if s == nil {
		return AccessToken{}, fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}

	// Fast path: a cached token in Valid or Warning state.
	now := m.clock.Now()
	if tok := s.current.Load(); tok != nil && tok.Valid(now) {
		return *tok, nil
	}

	tok, err := s.acquire(ctx, m)
	if err == nil {
		return tok, nil
	}

	if prev := s.current.Load(); prev != nil {
		return AccessToken{}, fmt.Errorf("%w: slot %q: %v", ErrTokenExpired, name, err)
	}
	return AccessToken{}, fmt.Errorf("%w: slot %q: %v", ErrTokenUnavailable, name, err)
}

// SlotState reports the lifecycle state of the named slot.
func (m *Manager) SlotState(name string) (State, bool) {
	s := m.lookup(name)
	if s == nil {
		return StateEmpty, false
	}
	return State(s.state.Load()), true
}

// Shutdown stops all refresh schedulers and cancels in-flight
// acquisitions, then waits for them to finish. Tokens previously
// returned to callers remain usable until their own natural expiry.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) lookup(name string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[name]
}

func (m *Manager) emit(event Event) {
	if m.observer != nil {
		m.observer.OnEvent(event)
	}
}

// refreshAt returns the instant at which the token is due for refresh.
func (m *Manager) refreshAt(tok AccessToken) time.Time {
	return scaleTime(tok.IssuedAt, tok.ExpiresAt, m.refreshFactor)
}

// warnAt returns the instant past which the unrefreshed token is
// considered stale.
func (m *Manager) warnAt(tok AccessToken) time.Time {
	return scaleTime(tok.IssuedAt, tok.ExpiresAt, m.warningFactor)
}

// jitter spreads retries out so slots sharing a provider do not
// synchronize their attempts.
func (m *Manager) jitter(d time.Duration) time.Duration {
	return d + rand.N(d/2+1)
}

// scaleTime returns the instant at factor of the way from issued to
// expires.
func scaleTime(issued, expires time.Time, factor float64) time.Time {
	return issued.Add(time.Duration(float64(expires.Sub(issued)) * factor))
}
