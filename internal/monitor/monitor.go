// Package monitor tracks connectivity and the signed-in identity and notifies
// subscribers of every change.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

// ErrInvalidTransition is returned for identity changes the state machine forbids.
var ErrInvalidTransition = errors.New("invalid identity transition")

// Listener receives transitions. Listeners run synchronously on the goroutine that caused
// the transition and must not call back into the monitor's setters.
type Listener func(Transition)

type subscription struct {
	id int
	fn Listener
}

// Monitor holds the online flag and identity.
type Monitor struct {
	emitMu sync.Mutex // serializes transitions with their notifications

	mu        sync.RWMutex
	online    bool
	identity  Identity
	listeners []subscription
	nextID    int

	logger *slog.Logger
	now    func() time.Time
}

// New creates a monitor in the Loading state.
func New(online bool, logger *slog.Logger) *Monitor {
	return &Monitor{
		online:   online,
		identity: Loading(),
		logger:   logger,
		now:      time.Now,
	}
}

// Online reports the current connectivity.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Identity returns the current identity.
func (m *Monitor) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// Snapshot returns identity and connectivity read atomically.
func (m *Monitor) Snapshot() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity, m.online
}

// Subscribe registers fn and returns a function that removes it.
func (m *Monitor) Subscribe(fn Listener) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, subscription{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.listeners {
			if s.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// SetOnline updates connectivity. Subscribers are notified only on an actual change.
func (m *Monitor) SetOnline(online bool) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	t := Transition{Previous: m.identity, Current: m.identity, Online: online, NetworkChanged: true}
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	m.logger.Info("network changed", slog.Bool("online", online))
	m.notify(listeners, t)
}

// SignIn moves to Authenticated(userID). Signing in again as the same user refreshes the
// token; switching users without signing out first is rejected.
func (m *Monitor) SignIn(userID, token string, expiresAt time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}
	return m.transition(Authenticated(userID, token, expiresAt))
}

// SignOut moves to Anonymous. Signing out an authenticated user requests a purge.
func (m *Monitor) SignOut() error {
	return m.transition(Anonymous())
}

// MarkLoading confirms the identity is still resolving. Nothing returns to Loading once
// resolved, so this fails with ErrInvalidTransition after the first resolution.
func (m *Monitor) MarkLoading() error {
	return m.transition(Loading())
}

func (m *Monitor) transition(next Identity) error {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	prev := m.identity
	if err := checkTransition(prev, next); err != nil {
		m.mu.Unlock()
		return err
	}
	if prev == next {
		m.mu.Unlock()
		return nil
	}
	m.identity = next
	t := Transition{
		Previous: prev,
		Current:  next,
		Online:   m.online,
		Purge:    prev.IsAuthenticated() && next.State == StateAnonymous,
	}
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	m.logger.Info("identity changed",
		slog.String("from", prev.String()),
		slog.String("to", next.String()),
		slog.Bool("purge", t.Purge),
	)
	m.notify(listeners, t)
	return nil
}

func checkTransition(prev, next Identity) error {
	switch {
	case next.State == StateLoading && prev.State != StateLoading:
		return fmt.Errorf("%w: %s -> loading", ErrInvalidTransition, prev)
	case prev.IsAuthenticated() && next.IsAuthenticated() && prev.UserID != next.UserID:
		return fmt.Errorf("%w: %s -> %s without sign-out", ErrInvalidTransition, prev, next)
	}
	return nil
}

func (m *Monitor) snapshotListeners() []subscription {
	out := make([]subscription, len(m.listeners))
	copy(out, m.listeners)
	return out
}

func (m *Monitor) notify(listeners []subscription, t Transition) {
	for _, s := range listeners {
		m.safeCall(s.fn, t)
	}
}

func (m *Monitor) safeCall(fn Listener, t Transition) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor listener panicked", slog.Any("panic", r))
		}
	}()
	fn(t)
}

// Token returns the bearer token of the signed-in user. It fails with
// AuthenticationRequired when nobody is signed in and AuthenticationExpired when the
// credential has expired.
func (m *Monitor) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := m.Identity()
	if !id.IsAuthenticated() {
		return "", apperrors.AuthenticationRequired("sign in to sync your collection")
	}
	if id.Expired(m.now()) {
		return "", apperrors.AuthenticationExpired("session expired, sign in again", nil)
	}
	return id.Token, nil
}
