// Package engine reconciles the in-memory view of a cart or wishlist with the local
// cache and the remote store.
//
// The in-memory state is always base (the last state adopted from the remote store
// or the cache) with every pending mutation re-applied on top, in call order.
// Mutations are applied optimistically under the engine lock and confirmed one at a
// time by a single drainer goroutine. A failed confirmation drops its mutation from
// the pending list, which restores the pre-mutation state while keeping later
// optimistic changes visible.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/monitor"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/remote"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/view"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

const defaultConfirmTimeout = 15 * time.Second

// Remote is the authoritative store.
type Remote interface {
	List(ctx context.Context, kind domain.Kind) ([]domain.LineItem, error)
	Add(ctx context.Context, kind domain.Kind, req remote.AddRequest) (domain.LineItem, error)
	Update(ctx context.Context, kind domain.Kind, itemID string, quantity int) error
	Remove(ctx context.Context, kind domain.Kind, itemID string) error
	Clear(ctx context.Context, kind domain.Kind) error
}

// Cache is the profile-local durable copy. It never fails.
type Cache interface {
	LoadFor(ctx context.Context, userID string) []domain.LineItem
	Save(ctx context.Context, owner string, items []domain.LineItem)
	Purge(ctx context.Context)
}

// Catalog resolves product snapshots.
type Catalog interface {
	Lookup(ctx context.Context, productID string) (domain.Snapshot, error)
}

// Monitor provides connectivity and identity.
type Monitor interface {
	Snapshot() (monitor.Identity, bool)
	Subscribe(fn monitor.Listener) func()
}

// Options configures an Engine. Kind, Remote, Cache and Monitor are required.
type Options struct {
	Kind           domain.Kind
	Remote         Remote
	Cache          Cache
	Monitor        Monitor
	Catalog        Catalog
	Publisher      Publisher
	Logger         *slog.Logger
	ConfirmTimeout time.Duration
	Now            func() time.Time
}

// Snapshot is a consistent copy of the engine state.
type Snapshot struct {
	Kind          domain.Kind       `json:"kind"`
	Items         []domain.LineItem `json:"items"`
	Summary       view.Summary      `json:"summary"`
	Loading       bool              `json:"loading"`
	Online        bool              `json:"online"`
	Authenticated bool              `json:"authenticated"`
	UserID        string            `json:"user_id,omitempty"`
	Pending       int               `json:"pending"`
	Version       uint64            `json:"version"`
}

type listener struct {
	id int
	fn func(Snapshot)
}

// Engine owns one collection of one browser profile.
type Engine struct {
	kind           domain.Kind
	remote         Remote
	cache          Cache
	catalog        Catalog
	publisher      Publisher
	logger         *slog.Logger
	confirmTimeout time.Duration
	now            func() time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup

	mu          sync.Mutex
	identity    monitor.Identity
	online      bool
	base        domain.Collection
	current     domain.Collection
	pending     []*op
	draining    bool
	loading     bool
	loadSeq     uint64
	loadCancel  context.CancelFunc
	baseVersion uint64
	// localOnly holds products of base that came from the cache and have not
	// been seen in a remote listing yet.
	localOnly   map[string]bool
	gen         uint64
	version     uint64
	busy        int
	idle        chan struct{}
	closed      bool

	notifyMu  sync.Mutex
	notified  uint64
	lmu       sync.Mutex
	listeners []listener
	nextID    int
}

// New creates an engine, subscribes it to the monitor and runs the initial load.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Kind != domain.KindCart && opts.Kind != domain.KindWishlist:
		return nil, fmt.Errorf("engine: unknown kind %q", opts.Kind)
	case opts.Remote == nil:
		return nil, errors.New("engine: remote store is required")
	case opts.Cache == nil:
		return nil, errors.New("engine: cache is required")
	case opts.Monitor == nil:
		return nil, errors.New("engine: monitor is required")
	}
	if opts.Publisher == nil {
		opts.Publisher = NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	e := &Engine{
		kind:           opts.Kind,
		remote:         opts.Remote,
		cache:          opts.Cache,
		catalog:        opts.Catalog,
		publisher:      opts.Publisher,
		logger:         opts.Logger.With(slog.String("kind", string(opts.Kind))),
		confirmTimeout: opts.ConfirmTimeout,
		now:            opts.Now,
		ctx:            ctx,
		cancel:         cancel,
		identity:       monitor.Loading(),
		base:           domain.NewCollection(opts.Kind),
		current:        domain.NewCollection(opts.Kind),
		loading:        true,
		idle:           idle,
	}

	e.unsubscribe = opts.Monitor.Subscribe(e.onTransition)
	identity, online := opts.Monitor.Snapshot()
	e.onTransition(monitor.Transition{Previous: monitor.Loading(), Current: identity, Online: online})
	return e, nil
}

// Kind returns the collection kind.
func (e *Engine) Kind() domain.Kind {
	return e.kind
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers fn for state changes and returns a function that removes it.
// Snapshots are delivered in version order; intermediate versions may be skipped.
// fn must not call mutating engine methods.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	e.lmu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listener{id: id, fn: fn})
	e.lmu.Unlock()

	return func() {
		e.lmu.Lock()
		defer e.lmu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// Wait blocks until no load or confirmation is in flight.
func (e *Engine) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		if e.busy == 0 {
			e.mu.Unlock()
			return nil
		}
		idle := e.idle
		e.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the engine. Pending confirmations are abandoned and settle as rolled back.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.gen++
	e.dropPendingLocked(apperrors.ServiceUnavailable("sync engine stopped"))
	e.cancelLoadLocked()
	e.mu.Unlock()

	e.unsubscribe()
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) onTransition(t monitor.Transition) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	prev := e.identity
	next := t.Current
	e.identity = next
	e.online = t.Online

	// A token refresh for the same user keeps the loaded state and any load in flight.
	if !t.NetworkChanged && prev.SameUser(next) {
		snap := e.changedLocked()
		e.mu.Unlock()
		e.emit(snap)
		return
	}

	purge := false
	if t.IdentityChanged() {
		// Nothing of the previous identity may survive into the next one.
		e.gen++
		e.dropPendingLocked(apperrors.IdentityChanged("identity changed before the change was confirmed"))
		e.base = domain.NewCollection(e.kind)
		e.current = e.base
		e.localOnly = nil
		purge = prev.IsAuthenticated() && next.State == monitor.StateAnonymous
	}
	e.cancelLoadLocked()

	switch next.State {
	case monitor.StateLoading:
		e.loading = true
	case monitor.StateAnonymous:
		e.loading = false
		e.base = domain.NewCollection(e.kind)
		e.current = e.base
		e.cache.Purge(e.ctx)
		loadsTotal.WithLabelValues(string(e.kind), sourceAnonymous).Inc()
	case monitor.StateAuthenticated:
		e.startLoadLocked(next.UserID, t.Online)
	}
	snap := e.changedLocked()
	e.mu.Unlock()

	if purge {
		e.logger.Info("collection purged on sign-out", slog.String("user_id", prev.UserID))
		e.publisher.Publish(e.ctx, Event{
			Type:       EventPurged,
			Kind:       e.kind,
			UserID:     prev.UserID,
			OccurredAt: e.now().UTC(),
		})
	}
	e.emit(snap)
}

func (e *Engine) snapshotLocked() Snapshot {
	items := e.current.Clone().Items
	return Snapshot{
		Kind:          e.kind,
		Items:         items,
		Summary:       view.Project(e.kind, items),
		Loading:       e.loading,
		Online:        e.online,
		Authenticated: e.identity.IsAuthenticated(),
		UserID:        e.identity.UserID,
		Pending:       len(e.pending),
		Version:       e.version,
	}
}

// changedLocked bumps the state version and returns the new snapshot.
func (e *Engine) changedLocked() Snapshot {
	e.version++
	return e.snapshotLocked()
}

func (e *Engine) emit(snap Snapshot) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if snap.Version <= e.notified {
		return
	}
	e.notified = snap.Version

	e.lmu.Lock()
	listeners := make([]listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.lmu.Unlock()

	for _, l := range listeners {
		e.safeCall(l.fn, snap)
	}
}

func (e *Engine) safeCall(fn func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("state listener panicked", slog.Any("panic", r))
		}
	}()
	fn(snap)
}

// rebaseLocked recomputes the visible state from base and the pending mutations.
func (e *Engine) rebaseLocked() {
	c := e.base
	for _, o := range e.pending {
		c, _ = o.apply(c)
	}
	e.current = c
}

func (e *Engine) persistLocked() {
	owner := ""
	if e.identity.IsAuthenticated() {
		owner = e.identity.UserID
	}
	e.cache.Save(e.ctx, owner, e.current.Items)
}

func (e *Engine) acquireLocked() {
	if e.busy == 0 {
		e.idle = make(chan struct{})
	}
	e.busy++
}

func (e *Engine) releaseLocked() {
	e.busy--
	if e.busy == 0 {
		close(e.idle)
	}
}

func (e *Engine) release() {
	e.mu.Lock()
	e.releaseLocked()
	e.mu.Unlock()
}

func (e *Engine) dropPendingLocked(cause error) {
	for _, o := range e.pending {
		if o.mutation.settle(RolledBack, cause) {
			mutationsTotal.WithLabelValues(string(e.kind), string(o.kind), outcomeDiscarded).Inc()
		}
	}
	e.pending = nil
	pendingMutations.WithLabelValues(string(e.kind)).Set(0)
}
