package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
)

// Op names a mutation operation.
type Op string

const (
	OpAdd         Op = "add"
	OpRemove      Op = "remove"
	OpSetQuantity Op = "set_quantity"
	OpIncrease    Op = "increase"
	OpDecrease    Op = "decrease"
	OpClear       Op = "clear"
)

// MutationState is the lifecycle of one optimistic mutation.
type MutationState int

const (
	// Applied: the optimistic change is visible, confirmation is pending.
	Applied MutationState = iota
	Confirmed
	RolledBack
)

func (s MutationState) String() string {
	switch s {
	case Applied:
		return "applied"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("MutationState(%d)", int(s))
	}
}

// Mutation is the handle returned for every accepted mutation.
type Mutation struct {
	ID        string
	Op        Op
	ProductID string

	mu    sync.Mutex
	state MutationState
	err   error
	done  chan struct{}
}

func newMutation(op Op, productID string) *Mutation {
	return &Mutation{
		ID:        uuid.New().String(),
		Op:        op,
		ProductID: productID,
		state:     Applied,
		done:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the rollback cause, or nil.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Done is closed once the mutation is confirmed or rolled back.
func (m *Mutation) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the mutation settles. It returns nil when confirmed and the
// rollback cause otherwise.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settle moves the mutation to its final state. Later calls are ignored.
func (m *Mutation) settle(state MutationState, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Applied {
		return false
	}
	m.state = state
	m.err = err
	close(m.done)
	return true
}

// op is one queued mutation awaiting remote confirmation.
type op struct {
	mutation *Mutation
	kind     Op
	item     domain.LineItem // add
	quantity int             // set_quantity
	userID   string
	gen      uint64
	// snapshot is the collection before the mutation was applied.
	snapshot domain.Collection
}

func (o *op) productID() string {
	return o.mutation.ProductID
}

// apply runs the local transform of the operation against c.
func (o *op) apply(c domain.Collection) (domain.Collection, bool) {
	switch o.kind {
	case OpAdd:
		return c.Add(o.item)
	case OpRemove:
		return c.Remove(o.productID())
	case OpSetQuantity:
		return c.SetQuantity(o.productID(), o.quantity)
	case OpIncrease:
		return c.Increase(o.productID())
	case OpDecrease:
		return c.Decrease(o.productID())
	case OpClear:
		return c.Clear()
	default:
		return c, false
	}
}
