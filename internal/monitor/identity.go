package monitor

import (
	"fmt"
	"time"
)

// State is the coarse identity state.
type State int

const (
	// StateLoading means the identity provider has not resolved yet.
	StateLoading State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Identity is the current user as seen by the engine.
type Identity struct {
	State     State
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// Loading returns the initial unresolved identity.
func Loading() Identity {
	return Identity{State: StateLoading}
}

// Anonymous returns the signed-out identity.
func Anonymous() Identity {
	return Identity{State: StateAnonymous}
}

// Authenticated returns a signed-in identity. A zero expiresAt never expires.
func Authenticated(userID, token string, expiresAt time.Time) Identity {
	return Identity{State: StateAuthenticated, UserID: userID, Token: token, ExpiresAt: expiresAt}
}

// IsAuthenticated reports whether a user is signed in.
func (i Identity) IsAuthenticated() bool {
	return i.State == StateAuthenticated
}

// Expired reports whether the credential is past its expiry at now.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// SameUser reports whether both identities are the same signed-in user.
func (i Identity) SameUser(other Identity) bool {
	return i.IsAuthenticated() && other.IsAuthenticated() && i.UserID == other.UserID
}

func (i Identity) String() string {
	if i.IsAuthenticated() {
		return "authenticated(" + i.UserID + ")"
	}
	return i.State.String()
}

// Transition describes one change observed by the monitor.
type Transition struct {
	Previous Identity
	Current  Identity
	Online   bool
	// NetworkChanged is set when only the online flag changed.
	NetworkChanged bool
	// Purge is set on every sign-out of an authenticated user. Local data of the previous
	// user must be dropped before anything else loads.
	Purge bool
}

// IdentityChanged reports whether the transition moved to a different user or state.
// A token refresh for the same user is not an identity change.
func (t Transition) IdentityChanged() bool {
	if t.NetworkChanged {
		return false
	}
	if t.Previous.SameUser(t.Current) {
		return false
	}
	return t.Previous.State != t.Current.State || t.Previous.UserID != t.Current.UserID
}
