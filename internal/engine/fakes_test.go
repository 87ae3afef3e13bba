package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/cache"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/monitor"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/remote"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/logger"
)

// --- Fake remote store ---

// fakeRemote is an in-memory remote store that keeps one collection per user and
// behaves like the cart service: adding an existing cart product merges quantities.
type fakeRemote struct {
	mu     sync.Mutex
	items  map[string][]domain.LineItem
	nextID int
	calls  []string
	userOf func() string

	// failOn returns an error for a call such as "LIST", "ADD p1", "UPDATE p1".
	failOn func(call string) error
	gate     chan struct{}
	listGate chan struct{}
}

func newFakeRemote(userOf func() string) *fakeRemote {
	return &fakeRemote{items: make(map[string][]domain.LineItem), userOf: userOf}
}

func (f *fakeRemote) key(kind domain.Kind) string {
	return f.userOf() + "/" + string(kind)
}

func (f *fakeRemote) seed(user string, kind domain.Kind, items ...domain.LineItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range items {
		if items[i].ID == "" {
			f.nextID++
			items[i].ID = fmt.Sprintf("srv-%d", f.nextID)
		}
	}
	f.items[user+"/"+string(kind)] = items
}

func (f *fakeRemote) snapshot(user string, kind domain.Kind) []domain.LineItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.LineItem, len(f.items[user+"/"+string(kind)]))
	copy(out, f.items[user+"/"+string(kind)])
	return out
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeRemote) setFailOn(fn func(call string) error) {
	f.mu.Lock()
	f.failOn = fn
	f.mu.Unlock()
}

// hold blocks mutating calls until the returned function is called.
func (f *fakeRemote) hold() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gate = gate
	return func() {
		f.mu.Lock()
		f.gate = nil
		f.mu.Unlock()
		close(gate)
	}
}

// holdList blocks List until the returned function is called.
func (f *fakeRemote) holdList() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.listGate = gate
	return func() {
		f.mu.Lock()
		f.listGate = nil
		f.mu.Unlock()
		close(gate)
	}
}

func (f *fakeRemote) count(call string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeRemote) enter(ctx context.Context, call string, gate chan struct{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	fail := f.failOn
	f.mu.Unlock()
	if fail != nil {
		if err := fail(call); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (f *fakeRemote) gates() (chan struct{}, chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gate, f.listGate
}

func (f *fakeRemote) List(ctx context.Context, kind domain.Kind) ([]domain.LineItem, error) {
	_, listGate := f.gates()
	if err := f.enter(ctx, "LIST", listGate); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.LineItem, len(f.items[f.key(kind)]))
	copy(out, f.items[f.key(kind)])
	return out, nil
}

func (f *fakeRemote) Add(ctx context.Context, kind domain.Kind, req remote.AddRequest) (domain.LineItem, error) {
	gate, _ := f.gates()
	if err := f.enter(ctx, "ADD "+req.ProductID, gate); err != nil {
		return domain.LineItem{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(kind)
	for i, it := range f.items[k] {
		if it.ProductID == req.ProductID {
			if kind.HasQuantity() {
				f.items[k][i].Quantity += req.Quantity
			}
			return f.items[k][i], nil
		}
	}
	f.nextID++
	item := domain.LineItem{
		ID:        fmt.Sprintf("srv-%d", f.nextID),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Name:      req.Name,
		Image:     req.Image,
		AddedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if !kind.HasQuantity() {
		item.Quantity = 0
	}
	f.items[k] = append(f.items[k], item)
	return item, nil
}

func (f *fakeRemote) Update(ctx context.Context, kind domain.Kind, itemID string, quantity int) error {
	gate, _ := f.gates()
	if err := f.enter(ctx, "UPDATE "+f.productOf(kind, itemID), gate); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(kind)
	for i, it := range f.items[k] {
		if it.ID == itemID {
			f.items[k][i].Quantity = quantity
			return nil
		}
	}
	return apperrors.NotFound("item", itemID)
}

func (f *fakeRemote) Remove(ctx context.Context, kind domain.Kind, itemID string) error {
	gate, _ := f.gates()
	if err := f.enter(ctx, "REMOVE "+f.productOf(kind, itemID), gate); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(kind)
	for i, it := range f.items[k] {
		if it.ID == itemID {
			f.items[k] = append(f.items[k][:i], f.items[k][i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("item", itemID)
}

func (f *fakeRemote) Clear(ctx context.Context, kind domain.Kind) error {
	gate, _ := f.gates()
	if err := f.enter(ctx, "CLEAR", gate); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, f.key(kind))
	return nil
}

func (f *fakeRemote) productOf(kind domain.Kind, itemID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items[f.key(kind)] {
		if it.ID == itemID {
			return it.ProductID
		}
	}
	return itemID
}

// --- Fake catalog ---

type fakeCatalog struct {
	products map[string]domain.Snapshot
}

func (c *fakeCatalog) Lookup(_ context.Context, productID string) (domain.Snapshot, error) {
	if s, ok := c.products[productID]; ok {
		return s, nil
	}
	return domain.Snapshot{}, apperrors.Enrichment(productID, apperrors.NotFound("product", productID))
}

// --- Mock publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event Event) {
	m.Called(ctx, event)
}

// --- Harness ---

type harness struct {
	t       *testing.T
	kind    domain.Kind
	remote  *fakeRemote
	backend *cache.MemoryBackend
	store   *cache.Store
	monitor *monitor.Monitor
	catalog *fakeCatalog
	pub     *mockPublisher
	engine  *Engine
}

func newHarness(t *testing.T, kind domain.Kind) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		kind:    kind,
		backend: cache.NewMemoryBackend(0),
		monitor: monitor.New(true, logger.Discard()),
		catalog: &fakeCatalog{products: map[string]domain.Snapshot{}},
		pub:     &mockPublisher{},
	}
	h.remote = newFakeRemote(func() string { return h.monitor.Identity().UserID })
	h.store = cache.NewStore(h.backend, "profile-1", kind, logger.Discard())
	h.pub.On("Publish", mock.Anything, mock.Anything).Return()
	return h
}

// start creates the engine; configure the remote and cache first.
func (h *harness) start() *harness {
	h.t.Helper()
	e, err := New(Options{
		Kind:           h.kind,
		Remote:         h.remote,
		Cache:          h.store,
		Monitor:        h.monitor,
		Catalog:        h.catalog,
		Publisher:      h.pub,
		Logger:         logger.Discard(),
		ConfirmTimeout: 2 * time.Second,
	})
	require.NoError(h.t, err)
	h.engine = e
	h.t.Cleanup(e.Close)
	h.wait()
	return h
}

func (h *harness) wait() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(h.t, h.engine.Wait(ctx))
}

func (h *harness) signIn(user string) {
	h.t.Helper()
	require.NoError(h.t, h.monitor.SignIn(user, "tok-"+user, time.Time{}))
	h.wait()
}

func (h *harness) signOut() {
	h.t.Helper()
	require.NoError(h.t, h.monitor.SignOut())
	h.wait()
}

func (h *harness) settle(m *Mutation) error {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := m.Wait(ctx)
	require.NotErrorIs(h.t, err, context.DeadlineExceeded)
	h.wait()
	return err
}

func (h *harness) cached(user string) []domain.LineItem {
	return h.store.LoadFor(context.Background(), user)
}

// quantities maps product id to quantity, the shape compared across the three copies.
func quantities(items []domain.LineItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.ProductID] = it.Quantity
	}
	return out
}

func productIDs(items []domain.LineItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ProductID)
	}
	sort.Strings(out)
	return out
}

func cartItem(productID string, quantity int, price int64) domain.LineItem {
	return domain.LineItem{ProductID: productID, Quantity: quantity, Price: price, Name: "Product " + productID}
}

func units(n int) *int { return &n }
