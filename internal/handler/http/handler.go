package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/engine"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/monitor"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/httputil"
)

// Collection is the engine surface the HTTP facade drives.
type Collection interface {
	Kind() domain.Kind
	Snapshot() engine.Snapshot
	Subscribe(fn func(engine.Snapshot)) func()
	AddItem(ctx context.Context, in engine.AddInput) (*engine.Mutation, error)
	RemoveItem(ctx context.Context, productID string) (*engine.Mutation, error)
	SetQuantity(ctx context.Context, productID string, quantity int) (*engine.Mutation, error)
	IncreaseQuantity(ctx context.Context, productID string) (*engine.Mutation, error)
	DecreaseQuantity(ctx context.Context, productID string) (*engine.Mutation, error)
	Clear(ctx context.Context) (*engine.Mutation, error)
}

// Session is the connectivity and identity source fed by the UI shell.
type Session interface {
	Snapshot() (monitor.Identity, bool)
	SetOnline(online bool)
	SignIn(userID, token string, expiresAt time.Time) error
	SignOut() error
	MarkLoading() error
}

// TokenParser extracts identity claims from a bearer token.
type TokenParser interface {
	Parse(raw string) (monitor.Claims, error)
}

const defaultWaitTimeout = 10 * time.Second

// Options configures a Handler.
type Options struct {
	Collections []Collection
	Session     Session
	Tokens      TokenParser
	ProfileID   string
	// WaitTimeout bounds ?wait=true requests; past it the mutation is reported
	// as still pending.
	WaitTimeout time.Duration
	// StreamOrigins are the host patterns allowed to open a state stream from a
	// browser page on another origin.
	StreamOrigins []string
	Logger        *slog.Logger
}

// Handler serves the local sync API.
type Handler struct {
	collections   map[domain.Kind]Collection
	session       Session
	tokens        TokenParser
	profileID     string
	waitTimeout   time.Duration
	streamOrigins []string
	logger        *slog.Logger
}

// NewHandler creates a handler over the given collections.
func NewHandler(opts Options) *Handler {
	byKind := make(map[domain.Kind]Collection, len(opts.Collections))
	for _, c := range opts.Collections {
		byKind[c.Kind()] = c
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}
	return &Handler{
		collections:   byKind,
		session:       opts.Session,
		tokens:        opts.Tokens,
		profileID:     opts.ProfileID,
		waitTimeout:   opts.WaitTimeout,
		streamOrigins: opts.StreamOrigins,
		logger:        opts.Logger,
	}
}

// SessionInfo reports the profile and signed-in user for request logging.
func (h *Handler) SessionInfo(context.Context) (profileID, userID string) {
	identity, _ := h.session.Snapshot()
	return h.profileID, identity.UserID
}

// --- Response DTOs ---

// StateResponse is the projected view of one collection.
type StateResponse struct {
	Kind          domain.Kind       `json:"kind"`
	Items         []domain.LineItem `json:"items"`
	Total         int64             `json:"total"`
	Count         int               `json:"count"`
	Unresolved    int               `json:"unresolved"`
	Loading       bool              `json:"loading"`
	Online        bool              `json:"online"`
	Authenticated bool              `json:"authenticated"`
	UserID        string            `json:"user_id,omitempty"`
	Pending       int               `json:"pending"`
	Version       uint64            `json:"version"`
}

func newStateResponse(s engine.Snapshot) StateResponse {
	items := s.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	return StateResponse{
		Kind:          s.Kind,
		Items:         items,
		Total:         s.Summary.Total,
		Count:         s.Summary.Count,
		Unresolved:    s.Summary.Unresolved,
		Loading:       s.Loading,
		Online:        s.Online,
		Authenticated: s.Authenticated,
		UserID:        s.UserID,
		Pending:       s.Pending,
		Version:       s.Version,
	}
}

// MutationResponse describes an accepted mutation.
type MutationResponse struct {
	ID        string    `json:"id"`
	Op        engine.Op `json:"op"`
	ProductID string    `json:"product_id,omitempty"`
	State     string    `json:"state"`
}

type mutationResult struct {
	Mutation MutationResponse `json:"mutation"`
	State    StateResponse    `json:"state"`
}

// SessionResponse is the connectivity and identity seen by the engines.
type SessionResponse struct {
	ProfileID string     `json:"profile_id"`
	Online    bool       `json:"online"`
	Identity  string     `json:"identity"`
	UserID    string     `json:"user_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// --- Errors ---

// errorBody maps err to the error envelope, tagging engine failures with their
// reason and retryability.
func (h *Handler) errorBody(r *http.Request, err error) (int, *httputil.ErrorResponse) {
	if errors.Is(err, monitor.ErrInvalidTransition) {
		err = apperrors.Conflict(err.Error())
	}
	status, body := httputil.ErrorBody(r, err, h.logger)
	if reason := engine.ReasonOf(err); reason != engine.ReasonUnknown {
		body.Reason = string(reason)
	}
	body.Retryable = engine.Retryable(err)
	return status, body
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := h.errorBody(r, err)
	httputil.WriteJSON(w, status, httputil.Response{Error: body})
}
