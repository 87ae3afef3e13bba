package engine

import (
	"context"
	"log/slog"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
)

// startLoadLocked begins a reconciliation load for userID. Any earlier load has
// already been cancelled by the caller.
func (e *Engine) startLoadLocked(userID string, online bool) {
	e.loadSeq++
	seq := e.loadSeq
	startVersion := e.baseVersion

	ctx, cancel := context.WithCancel(e.ctx)
	e.loadCancel = cancel
	e.loading = true
	e.acquireLocked()
	e.wg.Add(1)

	go e.load(ctx, cancel, seq, startVersion, userID, online)
}

func (e *Engine) cancelLoadLocked() {
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
}

func (e *Engine) load(ctx context.Context, cancel context.CancelFunc, seq, startVersion uint64, userID string, online bool) {
	defer e.wg.Done()
	defer e.release()
	defer cancel()

	items, source := e.fetch(ctx, userID, online)
	if ctx.Err() == nil {
		items = e.enrich(ctx, items, nil)
	}

	e.mu.Lock()
	if ctx.Err() != nil || seq != e.loadSeq || e.closed {
		e.mu.Unlock()
		loadsTotal.WithLabelValues(string(e.kind), sourceSuperseded).Inc()
		return
	}
	e.loadCancel = nil
	e.loading = false
	// A confirmation that finished while this load was in flight carries a newer
	// remote read, so the loaded items are dropped.
	if e.baseVersion == startVersion {
		e.base = domain.NewCollection(e.kind).WithItems(items)
		e.localOnly = nil
		if source != sourceRemote {
			e.localOnly = make(map[string]bool, len(items))
			for _, it := range e.base.Items {
				e.localOnly[it.ProductID] = true
			}
		}
		e.rebaseLocked()
	}
	e.persistLocked()
	snap := e.changedLocked()
	e.mu.Unlock()

	loadsTotal.WithLabelValues(string(e.kind), source).Inc()
	e.logger.Debug("collection loaded",
		slog.String("source", source),
		slog.Int("items", len(snap.Items)),
	)
	e.emit(snap)
}

// fetch reads the collection for userID. The remote store wins when it returns a
// non-empty list; an empty list or a failure falls back to the cache.
func (e *Engine) fetch(ctx context.Context, userID string, online bool) ([]domain.LineItem, string) {
	if !online {
		return e.cache.LoadFor(ctx, userID), sourceCache
	}

	items, err := e.remote.List(ctx, e.kind)
	if err != nil {
		if ctx.Err() != nil {
			return nil, sourceSuperseded
		}
		e.logger.WarnContext(ctx, "remote load failed, using local cache",
			slog.String("user_id", userID),
			slog.String("reason", string(ReasonOf(err))),
			slog.String("error", err.Error()),
		)
		return e.cache.LoadFor(ctx, userID), sourceCacheFallback
	}
	if len(items) == 0 {
		return e.cache.LoadFor(ctx, userID), sourceCacheFallback
	}
	return items, sourceRemote
}

// enrich fills in missing product snapshots, first from known items and then from
// the catalog. Items that cannot be resolved are marked Unresolved.
func (e *Engine) enrich(ctx context.Context, items []domain.LineItem, known []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, len(items))
	copy(out, items)

	for i := range out {
		item := &out[i]
		if item.HasSnapshot() {
			item.Unresolved = false
			continue
		}
		if k, ok := findSnapshot(known, item.ProductID); ok {
			domain.Snapshot{Name: k.Name, Price: k.Price, Image: k.Image}.Apply(item)
			continue
		}
		if e.catalog == nil {
			item.Unresolved = true
			continue
		}
		snap, err := e.catalog.Lookup(ctx, item.ProductID)
		if err != nil {
			if ctx.Err() == nil {
				enrichmentFailures.WithLabelValues(string(e.kind)).Inc()
			}
			item.Unresolved = true
			continue
		}
		snap.Apply(item)
	}
	return out
}

func findSnapshot(items []domain.LineItem, productID string) (domain.LineItem, bool) {
	for _, it := range items {
		if it.ProductID == productID && it.HasSnapshot() {
			return it, true
		}
	}
	return domain.LineItem{}, false
}
