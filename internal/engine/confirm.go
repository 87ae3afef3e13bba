package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/remote"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

func (e *Engine) startDrainLocked() {
	if e.draining {
		return
	}
	e.draining = true
	e.acquireLocked()
	e.wg.Add(1)
	go e.drain()
}

// drain confirms pending mutations one at a time, oldest first.
func (e *Engine) drain() {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			e.draining = false
			e.releaseLocked()
			e.mu.Unlock()
			return
		}
		o := e.pending[0]
		online := e.online
		e.mu.Unlock()

		var (
			err     error
			listed  []domain.LineItem
			listErr error
		)
		if !online {
			err = apperrors.TransientRemote("offline, changes reverted", nil)
		} else {
			ctx, cancel := context.WithTimeout(e.ctx, e.confirmTimeout)
			err = e.confirm(ctx, o)
			if err == nil {
				listed, listErr = e.remote.List(ctx, e.kind)
				if listErr == nil {
					listed = e.enrich(ctx, listed, e.knownItems())
				}
			}
			cancel()
		}
		e.finish(o, err, listed, listErr)
	}
}

// confirm sends the remote request that corresponds to o.
func (e *Engine) confirm(ctx context.Context, o *op) error {
	switch o.kind {
	case OpAdd:
		quantity, err := e.addQuantity(ctx, o)
		if err != nil {
			return err
		}
		_, err = e.remote.Add(ctx, e.kind, addRequest(o.item, quantity))
		return err
	case OpRemove:
		item, found, err := e.resolveItem(ctx, o.productID())
		if err != nil || !found {
			return err
		}
		return ignoreNotFound(e.remote.Remove(ctx, e.kind, item.ID))
	case OpSetQuantity:
		return e.pushQuantity(ctx, o, func(int) int { return o.quantity })
	case OpIncrease:
		return e.pushQuantity(ctx, o, func(q int) int { return q + 1 })
	case OpDecrease:
		return e.pushQuantity(ctx, o, func(q int) int {
			if q <= 1 {
				return q
			}
			return q - 1
		})
	case OpClear:
		return e.remote.Clear(ctx, e.kind)
	default:
		return nil
	}
}

// pushQuantity writes the absolute quantity derived from the remote copy of the item.
func (e *Engine) pushQuantity(ctx context.Context, o *op, target func(int) int) error {
	item, found, err := e.resolveItem(ctx, o.productID())
	if err != nil {
		return err
	}

	// Not on the remote yet, e.g. adopted from the cache after an empty listing:
	// start from the local quantity and create the item there.
	if !found {
		prior, _ := o.snapshot.Get(o.productID())
		prior.ProductID = o.productID()
		q := target(prior.Quantity)
		if q <= 0 {
			return nil
		}
		_, err := e.remote.Add(ctx, e.kind, addRequest(prior, q))
		return err
	}

	q := target(item.Quantity)
	switch {
	case q == item.Quantity:
		return nil
	case q <= 0:
		return ignoreNotFound(e.remote.Remove(ctx, e.kind, item.ID))
	}

	err = e.remote.Update(ctx, e.kind, item.ID, q)
	if errors.Is(err, apperrors.ErrNotFound) {
		prior, _ := o.snapshot.Get(o.productID())
		prior.ProductID = o.productID()
		_, err = e.remote.Add(ctx, e.kind, addRequest(prior, q))
	}
	return err
}

// resolveItem returns the remote copy of productID. Items only known under a local
// id are looked up in a fresh remote listing.
func (e *Engine) resolveItem(ctx context.Context, productID string) (domain.LineItem, bool, error) {
	e.mu.Lock()
	item, ok := e.base.Get(productID)
	e.mu.Unlock()
	if ok && !domain.IsLocalID(item.ID) {
		return item, true, nil
	}

	return e.findRemote(ctx, productID)
}

func (e *Engine) findRemote(ctx context.Context, productID string) (domain.LineItem, bool, error) {
	items, err := e.remote.List(ctx, e.kind)
	if err != nil {
		return domain.LineItem{}, false, err
	}
	for _, it := range items {
		if it.ProductID == productID {
			return it, true, nil
		}
	}
	return domain.LineItem{}, false, nil
}

// addQuantity is the number of units to send for an add. The remote merges into
// an item it already has; a cache-only item is sent with its local units included.
func (e *Engine) addQuantity(ctx context.Context, o *op) (int, error) {
	e.mu.Lock()
	localOnly := e.localOnly[o.productID()]
	e.mu.Unlock()
	prior, ok := o.snapshot.Get(o.productID())
	if !localOnly || !ok {
		return o.item.Quantity, nil
	}

	_, found, err := e.findRemote(ctx, o.productID())
	if err != nil {
		return 0, err
	}
	if found {
		return o.item.Quantity, nil
	}
	return prior.Quantity + o.item.Quantity, nil
}

func (e *Engine) knownItems() []domain.LineItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	known := make([]domain.LineItem, 0, len(e.current.Items)+len(e.base.Items))
	known = append(known, e.current.Items...)
	known = append(known, e.base.Items...)
	return known
}

// finish settles o. A confirmation of an older identity generation is discarded
// without touching state.
func (e *Engine) finish(o *op, confirmErr error, listed []domain.LineItem, listErr error) {
	e.mu.Lock()
	if o.gen != e.gen || len(e.pending) == 0 || e.pending[0] != o {
		e.mu.Unlock()
		return
	}
	e.pending = e.pending[1:]
	pendingMutations.WithLabelValues(string(e.kind)).Set(float64(len(e.pending)))

	state := Confirmed
	if confirmErr != nil {
		confirmErr = rollbackCause(confirmErr)
		state = RolledBack
	} else {
		if listErr == nil {
			e.base = e.adoptLocked(listed, o)
		} else {
			e.base, _ = o.apply(e.base)
		}
		e.baseVersion++
	}
	e.rebaseLocked()
	e.persistLocked()
	snap := e.changedLocked()
	e.mu.Unlock()

	o.mutation.settle(state, confirmErr)

	event := Event{
		Kind:       e.kind,
		UserID:     o.userID,
		MutationID: o.mutation.ID,
		Op:         o.kind,
		ProductID:  o.productID(),
		ItemCount:  snap.Summary.Count,
		Total:      snap.Summary.Total,
		OccurredAt: e.now().UTC(),
	}
	if state == RolledBack {
		event.Type = EventMutationRolledBack
		event.Reason = ReasonOf(confirmErr)
		mutationsTotal.WithLabelValues(string(e.kind), string(o.kind), outcomeRolledBack).Inc()
		e.logger.Warn("mutation rolled back",
			slog.String("op", string(o.kind)),
			slog.String("product_id", o.productID()),
			slog.String("mutation_id", o.mutation.ID),
			slog.String("reason", string(event.Reason)),
			slog.String("error", confirmErr.Error()),
		)
	} else {
		event.Type = EventMutationConfirmed
		mutationsTotal.WithLabelValues(string(e.kind), string(o.kind), outcomeConfirmed).Inc()
		if listErr != nil {
			e.logger.Warn("refresh after confirmation failed, keeping local result",
				slog.String("mutation_id", o.mutation.ID),
				slog.String("error", listErr.Error()),
			)
		}
	}
	e.publisher.Publish(e.ctx, event)
	e.emit(snap)
}

// adoptLocked turns a remote listing taken after confirming o into the new base.
// Cache-only items that o did not touch are kept; the remote has never seen them.
func (e *Engine) adoptLocked(listed []domain.LineItem, o *op) domain.Collection {
	adopted := domain.NewCollection(e.kind).WithItems(listed)
	if o.kind == OpClear {
		e.localOnly = nil
		return adopted
	}
	kept := make(map[string]bool)
	for _, item := range e.base.Items {
		if !e.localOnly[item.ProductID] || item.ProductID == o.productID() {
			continue
		}
		if _, ok := adopted.Get(item.ProductID); ok {
			continue
		}
		adopted.Items = append(adopted.Items, item)
		kept[item.ProductID] = true
	}
	e.localOnly = kept
	return adopted
}

// rollbackCause maps a confirmation failure onto AuthenticationExpired or
// TransientRemoteFailure, keeping the original error in the chain.
func rollbackCause(err error) error {
	switch ReasonOf(err) {
	case ReasonAuthenticationExpired, ReasonTransientRemote:
		return err
	case ReasonAuthenticationRequired:
		return apperrors.AuthenticationExpired("session ended, changes reverted", err)
	default:
		return apperrors.TransientRemote("changes reverted, retry available", err)
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

func addRequest(item domain.LineItem, quantity int) remote.AddRequest {
	return remote.AddRequest{
		ProductID: item.ProductID,
		Quantity:  quantity,
		Price:     item.Price,
		Name:      item.Name,
		Image:     item.Image,
	}
}
