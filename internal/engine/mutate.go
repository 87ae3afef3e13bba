package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/validator"
)

// AddInput describes an item to add. A nil Quantity adds one unit. Name, Price and
// Image form the product snapshot; when all are empty the snapshot is looked up in
// the catalog.
type AddInput struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	Quantity  *int   `json:"quantity,omitempty"`
	Price     int64  `json:"price" validate:"gte=0"`
	Name      string `json:"name" validate:"max=512"`
	Image     string `json:"image" validate:"max=2048"`
}

const maxQuantity = 999

// quantity returns the number of units to add for kind.
func (in AddInput) quantity(kind domain.Kind) (int, error) {
	if !kind.HasQuantity() {
		return 0, nil
	}
	if in.Quantity == nil {
		return 1, nil
	}
	switch q := *in.Quantity; {
	case q <= 0:
		return 0, apperrors.InvalidInput("quantity must be greater than 0")
	case q > maxQuantity:
		return 0, apperrors.InvalidInput("quantity must be at most 999")
	default:
		return q, nil
	}
}

func (in AddInput) snapshot() domain.Snapshot {
	return domain.Snapshot{Name: in.Name, Price: in.Price, Image: in.Image}
}

// AddItem adds a product. Carts merge quantities into an existing entry; adding a
// product already on the wishlist is a confirmed no-op. Only signed-in users can add.
func (e *Engine) AddItem(ctx context.Context, in AddInput) (*Mutation, error) {
	in.ProductID = strings.TrimSpace(in.ProductID)
	if err := validator.Validate(in); err != nil {
		return nil, invalidInput(err)
	}
	quantity, err := in.quantity(e.kind)
	if err != nil {
		return nil, err
	}
	if !e.authenticated() {
		return nil, e.reject(OpAdd)
	}

	item := domain.LineItem{
		ID:        domain.NewLocalID(),
		ProductID: in.ProductID,
		Quantity:  quantity,
		AddedAt:   e.now().UTC(),
	}
	if snap := in.snapshot(); snap.Name != "" || snap.Price > 0 {
		snap.Apply(&item)
	} else {
		e.resolveSnapshot(ctx, &item)
	}

	return e.submit(ctx, &op{kind: OpAdd, item: item}, newMutation(OpAdd, in.ProductID))
}

// RemoveItem removes a product. Removing an absent product is a confirmed no-op.
func (e *Engine) RemoveItem(ctx context.Context, productID string) (*Mutation, error) {
	productID, err := requireProduct(productID)
	if err != nil {
		return nil, err
	}
	return e.submit(ctx, &op{kind: OpRemove}, newMutation(OpRemove, productID))
}

// SetQuantity sets the quantity of a cart item; zero removes it.
func (e *Engine) SetQuantity(ctx context.Context, productID string, quantity int) (*Mutation, error) {
	productID, err := e.requireQuantified(productID)
	if err != nil {
		return nil, err
	}
	if quantity < 0 || quantity > maxQuantity {
		return nil, apperrors.InvalidInput("quantity must be between 0 and 999")
	}
	return e.submit(ctx, &op{kind: OpSetQuantity, quantity: quantity}, newMutation(OpSetQuantity, productID))
}

// IncreaseQuantity adds one to a cart item.
func (e *Engine) IncreaseQuantity(ctx context.Context, productID string) (*Mutation, error) {
	productID, err := e.requireQuantified(productID)
	if err != nil {
		return nil, err
	}
	return e.submit(ctx, &op{kind: OpIncrease}, newMutation(OpIncrease, productID))
}

// DecreaseQuantity subtracts one from a cart item. At quantity 1 it is a no-op;
// removal has to go through RemoveItem.
func (e *Engine) DecreaseQuantity(ctx context.Context, productID string) (*Mutation, error) {
	productID, err := e.requireQuantified(productID)
	if err != nil {
		return nil, err
	}
	return e.submit(ctx, &op{kind: OpDecrease}, newMutation(OpDecrease, productID))
}

// Clear removes every item.
func (e *Engine) Clear(ctx context.Context) (*Mutation, error) {
	return e.submit(ctx, &op{kind: OpClear}, newMutation(OpClear, ""))
}

// submit applies o optimistically against the latest state and queues its
// confirmation when a user is signed in.
func (e *Engine) submit(ctx context.Context, o *op, m *Mutation) (*Mutation, error) {
	o.mutation = m

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, apperrors.ServiceUnavailable("sync engine stopped")
	}
	identity := e.identity
	if o.kind == OpAdd && !identity.IsAuthenticated() {
		e.mu.Unlock()
		return nil, e.reject(OpAdd)
	}

	next, changed := o.apply(e.current)
	if !changed {
		e.mu.Unlock()
		m.settle(Confirmed, nil)
		mutationsTotal.WithLabelValues(string(e.kind), string(o.kind), outcomeNoop).Inc()
		return m, nil
	}

	o.snapshot = e.current.Clone()
	e.current = next
	mutationsTotal.WithLabelValues(string(e.kind), string(o.kind), outcomeApplied).Inc()

	if !identity.IsAuthenticated() {
		// Guests have no remote copy; the local change is final.
		e.base = e.current
		e.persistLocked()
		snap := e.changedLocked()
		e.mu.Unlock()

		m.settle(Confirmed, nil)
		mutationsTotal.WithLabelValues(string(e.kind), string(o.kind), outcomeConfirmed).Inc()
		e.emit(snap)
		return m, nil
	}

	o.userID = identity.UserID
	o.gen = e.gen
	e.pending = append(e.pending, o)
	pendingMutations.WithLabelValues(string(e.kind)).Set(float64(len(e.pending)))
	e.persistLocked()
	e.startDrainLocked()
	snap := e.changedLocked()
	e.mu.Unlock()

	e.logger.DebugContext(ctx, "mutation applied",
		slog.String("op", string(o.kind)),
		slog.String("product_id", m.ProductID),
		slog.String("mutation_id", m.ID),
	)
	e.emit(snap)
	return m, nil
}

func (e *Engine) authenticated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity.IsAuthenticated()
}

func (e *Engine) reject(o Op) error {
	mutationsTotal.WithLabelValues(string(e.kind), string(o), outcomeRejected).Inc()
	return apperrors.AuthenticationRequired("sign in to add items to your " + string(e.kind))
}

// resolveSnapshot looks the product up in the catalog. A failed lookup leaves the
// item unresolved; it is still added.
func (e *Engine) resolveSnapshot(ctx context.Context, item *domain.LineItem) {
	if e.catalog == nil {
		item.Unresolved = true
		return
	}
	snap, err := e.catalog.Lookup(ctx, item.ProductID)
	if err != nil {
		enrichmentFailures.WithLabelValues(string(e.kind)).Inc()
		item.Unresolved = true
		return
	}
	snap.Apply(item)
}

func (e *Engine) requireQuantified(productID string) (string, error) {
	if !e.kind.HasQuantity() {
		return "", apperrors.InvalidInput(string(e.kind) + " items have no quantity")
	}
	return requireProduct(productID)
}

func requireProduct(productID string) (string, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return "", apperrors.InvalidInput("product id is required")
	}
	return productID, nil
}

// invalidInput wraps a validation failure so that both apperrors.ErrInvalidInput and
// the field-level *validator.ValidationError can be matched.
func invalidInput(err error) error {
	var valErr *validator.ValidationError
	if !errors.As(err, &valErr) {
		return apperrors.InvalidInput(err.Error())
	}
	return &apperrors.AppError{
		Code:    "VALIDATION_ERROR",
		Message: valErr.Error(),
		Status:  http.StatusBadRequest,
		Err:     errors.Join(apperrors.ErrInvalidInput, valErr),
	}
}
