package wifi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// Policy controls the delay between failed connect attempts. With Max
// unset the delay is constant; otherwise it doubles up to Max.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p Policy) backOff() backoff.BackOff {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	if p.Max <= initial {
		return backoff.NewConstantBackOff(initial)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = p.Max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Option configures a Manager.
type Option func(*Manager)

// WithStateHook registers a callback for every link state change.
func WithStateHook(fn func(logic.LinkState)) Option {
	return func(m *Manager) { m.onState = fn }
}

// WithAttemptHook registers a callback for every failed connect attempt.
func WithAttemptHook(fn func(err error)) Option {
	return func(m *Manager) { m.onFailure = fn }
}

// WithTimer replaces the backoff timer (tests).
func WithTimer(t backoff.Timer) Option {
	return func(m *Manager) { m.timer = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the link state. Connect drives it from DISCONNECTED to
// ASSOCIATED; IsConnected detects loss.
type Manager struct {
	radio  Radio
	creds  Credentials
	policy Policy
	log    *logger.Logger

	timer     backoff.Timer
	now       func() time.Time
	onState   func(logic.LinkState)
	onFailure func(error)

	mu      sync.RWMutex
	state   logic.LinkState
	session *Session
}

// NewManager returns a disconnected manager.
func NewManager(radio Radio, creds Credentials, policy Policy, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		radio:  radio,
		creds:  creds,
		policy: policy,
		log:    log,
		now:    time.Now,
		state:  logic.Disconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect blocks until the station is associated and has an address, or
// ctx is done. Failures are retried with the configured backoff: a missing
// access point, a failed association and a failed lease all restart from
// a fresh scan.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	var (
		baseline    int8
		hasBaseline bool
		session     *Session
	)

	attempt := func() error {
		m.setState(logic.LinkState{Phase: logic.LinkScanning})
		aps, err := m.radio.Scan(ctx)
		if err != nil {
			return &LinkError{Op: OpScan, Err: err}
		}
		ap, ok := strongest(aps, m.creds.SSID)
		if !ok {
			// The next sighting sets a fresh baseline.
			hasBaseline = false
			return &LinkError{Op: OpNotFound, Err: ErrNotFound}
		}
		if !hasBaseline {
			baseline = ap.RSSI
			hasBaseline = true
		}

		m.setState(logic.LinkState{Phase: logic.LinkConnecting})
		m.log.Infow("wifi_associating", "ssid", ap.SSID, "bssid", ap.BSSID, "channel", ap.Channel, "rssi", ap.RSSI)
		if err := m.radio.Associate(ctx, m.creds, ap); err != nil {
			return &LinkError{Op: OpAssociate, Err: err}
		}
		addr, err := m.radio.WaitLease(ctx)
		if err != nil {
			return &LinkError{Op: OpLease, Err: err}
		}

		session = &Session{
			SSID:         ap.SSID,
			BSSID:        ap.BSSID,
			Channel:      ap.Channel,
			BaselineRSSI: baseline,
			Address:      addr,
			Since:        m.now(),
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		m.setState(logic.Disconnected)
		m.log.Warnw("wifi_connect_failed", "err", err, "retry_in", next)
		if m.onFailure != nil {
			m.onFailure(err)
		}
	}

	b := backoff.WithContext(m.policy.backOff(), ctx)
	var err error
	if m.timer != nil {
		err = backoff.RetryNotifyWithTimer(attempt, b, notify, m.timer)
	} else {
		err = backoff.RetryNotify(attempt, b, notify)
	}
	if err != nil {
		m.setState(logic.Disconnected)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	m.setState(logic.Associated(session.BaselineRSSI))
	m.log.Infow("wifi_connected", "ssid", session.SSID, "address", session.Address, "baseline_rssi", session.BaselineRSSI)
	return session, nil
}

// IsConnected polls the radio. A negative answer (or a failed poll) moves
// the link to DISCONNECTED.
func (m *Manager) IsConnected(ctx context.Context) bool {
	ok, err := m.radio.Connected(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return m.State().IsAssociated()
		}
		m.log.Warnw("wifi_status_failed", "err", err)
	}
	if ok && err == nil {
		return true
	}
	if m.State().IsAssociated() {
		m.log.Warnw("wifi_link_lost")
	}
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	m.setState(logic.Disconnected)
	return false
}

// CurrentRSSI reads the live signal strength of the current association.
func (m *Manager) CurrentRSSI(ctx context.Context) (int8, error) {
	if !m.State().IsAssociated() {
		return 0, &LinkError{Op: "rssi", Err: errors.New("not associated")}
	}
	rssi, err := m.radio.SignalStrength(ctx)
	if err != nil {
		return 0, &LinkError{Op: "rssi", Err: err}
	}
	m.mu.Lock()
	changed := m.state.IsAssociated() && m.state.RSSI != rssi
	if changed {
		m.state.RSSI = rssi
	}
	state := m.state
	m.mu.Unlock()
	if changed && m.onState != nil {
		m.onState(state)
	}
	return rssi, nil
}

// Disconnect drops the association.
func (m *Manager) Disconnect(ctx context.Context) error {
	err := m.radio.Disconnect(ctx)
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	m.setState(logic.Disconnected)
	return err
}

// State returns the current link state.
func (m *Manager) State() logic.LinkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session returns a copy of the current session, or nil.
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

func (m *Manager) setState(s logic.LinkState) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	m.log.Debugw("wifi_state", "state", s.String())
	if m.onState != nil {
		m.onState(s)
	}
}
