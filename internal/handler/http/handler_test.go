package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/cache"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/engine"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/monitor"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/remote"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/health"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/logger"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/middleware"
)

const testSecret = "test-secret"

// ============================================================================
// In-memory remote store
// ============================================================================

type memRemote struct {
	mu     sync.Mutex
	items  map[domain.Kind][]domain.LineItem
	nextID int
	fail   error
}

func newMemRemote() *memRemote {
	return &memRemote{items: make(map[domain.Kind][]domain.LineItem)}
}

func (m *memRemote) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *memRemote) list(kind domain.Kind) []domain.LineItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LineItem(nil), m.items[kind]...)
}

func (m *memRemote) List(_ context.Context, kind domain.Kind) ([]domain.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return append([]domain.LineItem(nil), m.items[kind]...), nil
}

func (m *memRemote) Add(_ context.Context, kind domain.Kind, req remote.AddRequest) (domain.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return domain.LineItem{}, m.fail
	}
	for i, it := range m.items[kind] {
		if it.ProductID == req.ProductID {
			m.items[kind][i].Quantity += req.Quantity
			return m.items[kind][i], nil
		}
	}
	m.nextID++
	item := domain.LineItem{
		ID:        fmt.Sprintf("srv-%d", m.nextID),
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Name:      req.Name,
		AddedAt:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if !kind.HasQuantity() {
		item.Quantity = 0
	}
	m.items[kind] = append(m.items[kind], item)
	return item, nil
}

func (m *memRemote) Update(_ context.Context, kind domain.Kind, itemID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	for i, it := range m.items[kind] {
		if it.ID == itemID {
			m.items[kind][i].Quantity = quantity
			return nil
		}
	}
	return apperrors.NotFound("item", itemID)
}

func (m *memRemote) Remove(_ context.Context, kind domain.Kind, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	for i, it := range m.items[kind] {
		if it.ID == itemID {
			m.items[kind] = append(m.items[kind][:i], m.items[kind][i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("item", itemID)
}

func (m *memRemote) Clear(_ context.Context, kind domain.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.items, kind)
	return nil
}

// ============================================================================
// Test helpers
// ============================================================================

type testEnv struct {
	t       *testing.T
	remote  *memRemote
	monitor *monitor.Monitor
	engines map[domain.Kind]*engine.Engine
	router  http.Handler
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()

	mon := monitor.New(true, logger.Discard())
	rem := newMemRemote()
	backend := cache.NewMemoryBackend(0)

	env := &testEnv{t: t, remote: rem, monitor: mon, engines: make(map[domain.Kind]*engine.Engine)}
	var collections []Collection
	for _, kind := range []domain.Kind{domain.KindCart, domain.KindWishlist} {
		e, err := engine.New(engine.Options{
			Kind:           kind,
			Remote:         rem,
			Cache:          cache.NewStore(backend, "profile-1", kind, logger.Discard()),
			Monitor:        mon,
			Logger:         logger.Discard(),
			ConfirmTimeout: 2 * time.Second,
		})
		require.NoError(t, err)
		t.Cleanup(e.Close)
		env.engines[kind] = e
		collections = append(collections, e)
	}

	h := NewHandler(Options{
		Collections: collections,
		Session:     mon,
		Tokens:      monitor.NewTokenParser(testSecret),
		ProfileID:   "profile-1",
		WaitTimeout: 2 * time.Second,
		Logger:      logger.Discard(),
	})
	env.router = NewRouter(h, health.NewHandler(), logger.Discard(), RouterConfig{
		ServiceName: "cartsync-test",
		APIKey:      apiKey,
		CORS:        middleware.DefaultCORSConfig("https://shop.test"),
	})

	require.NoError(t, mon.SignOut())
	env.settle()
	return env
}

func (e *testEnv) settle() {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, eng := range e.engines {
		require.NoError(e.t, eng.Wait(ctx))
	}
}

func (e *testEnv) do(method, target string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signIn(userID string) {
	e.t.Helper()
	rec := e.do(http.MethodPut, "/api/v1/session/identity", map[string]string{"token": signToken(e.t, userID, time.Hour)})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	e.settle()
}

func signToken(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(ttl).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code      string            `json:"code"`
		Message   string            `json:"message"`
		Reason    string            `json:"reason"`
		Retryable bool              `json:"retryable"`
		Fields    map[string]string `json:"fields"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) StateResponse {
	t.Helper()
	var s StateResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &s))
	return s
}

func decodeMutation(t *testing.T, rec *httptest.ResponseRecorder) mutationResult {
	t.Helper()
	var m mutationResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &m))
	return m
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var s SessionResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &s))
	return s
}

func quantities(items []domain.LineItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.ProductID] = it.Quantity
	}
	return out
}

func qty(n int) *int { return &n }

// ============================================================================
// Collection endpoints
// ============================================================================

func TestGetCollection_Anonymous(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	state := decodeState(t, rec)
	assert.Equal(t, domain.KindCart, state.Kind)
	assert.Empty(t, state.Items)
	assert.NotNil(t, state.Items)
	assert.False(t, state.Authenticated)
	assert.True(t, state.Online)
	assert.False(t, state.Loading)
}

func TestGetCollection_UnknownKind(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodGet, "/api/v1/basket", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec).Error.Code)
}

func TestAddItem_RequiresSignIn(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: "p1", Quantity: qty(1), Price: 1000})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "AUTHENTICATION_REQUIRED", body.Error.Code)
	assert.Equal(t, "authentication_required", body.Error.Reason)
	assert.False(t, body.Error.Retryable)
}

func TestAddItem_WaitConfirms(t *testing.T) {
	env := newTestEnv(t, "")
	env.signIn("alice")

	rec := env.do(http.MethodPost, "/api/v1/cart/items?wait=true", AddItemRequest{ProductID: "p1", Quantity: qty(2), Price: 1000, Name: "Mug"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeMutation(t, rec)
	assert.Equal(t, engine.OpAdd, result.Mutation.Op)
	assert.Equal(t, "p1", result.Mutation.ProductID)
	assert.Equal(t, "confirmed", result.Mutation.State)
	assert.Equal(t, int64(2000), result.State.Total)
	assert.Equal(t, 2, result.State.Count)

	remoteItems := env.remote.list(domain.KindCart)
	require.Len(t, remoteItems, 1)
	assert.Equal(t, 2, remoteItems[0].Quantity)
}

func TestAddItem_OmittedQuantityAddsOne(t *testing.T) {
	env := newTestEnv(t, "")
	env.signIn("alice")

	rec := env.do(http.MethodPost, "/api/v1/cart/items?wait=true", AddItemRequest{ProductID: "p1", Price: 1000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeMutation(t, rec)
	assert.Equal(t, "confirmed", result.Mutation.State)
	assert.Equal(t, 1, result.State.Count)
	assert.Equal(t, int64(1000), result.State.Total)
	assert.Equal(t, map[string]int{"p1": 1}, quantities(env.remote.list(domain.KindCart)))
}

func TestAddItem_AcceptedWithoutWait(t *testing.T) {
	env := newTestEnv(t, "")
	env.signIn("alice")

	rec := env.do(http.MethodPost, "/api/v1/wishlist/items", AddItemRequest{ProductID: "p7", Price: 500})
	require.Contains(t, []int{http.StatusAccepted, http.StatusOK}, rec.Code)

	result := decodeMutation(t, rec)
	require.Len(t, result.State.Items, 1)
	assert.Equal(t, "p7", result.State.Items[0].ProductID)
	assert.Equal(t, 1, result.State.Count)

	env.settle()
	assert.Len(t, env.remote.list(domain.KindWishlist), 1)
}

func TestAddItem_Validation(t *testing.T) {
	env := newTestEnv(t, "")
	env.signIn("alice")

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"missing product", `{"quantity":1}`, "VALIDATION_ERROR"},
		{"zero quantity", `{"product_id":"p1","quantity":0}`, "VALIDATION_ERROR"},
		{"negative quantity", `{"product_id":"p1","quantity":-2}`, "VALIDATION_ERROR"},
		{"quantity too large", `{"product_id":"p1","quantity":1000}`, "VALIDATION_ERROR"},
		{"negative price", `{"product_id":"p1","price":-1}`, "VALIDATION_ERROR"},
		{"unknown field", `{"product_id":"p1","colour":"red"}`, "INVALID_INPUT"},
		{"malformed", `{"product_id":`, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decode(t, rec).Error.Code)
		})
	}
	assert.Empty(t, env.remote.list(domain.KindCart))
}

func TestAddItem_UnsupportedMediaType(t *testing.T) {
	env := newTestEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("product_id=p1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestMutation_RollbackReportsReason(t *testing.T) {
	env := newTestEnv(t, "")
	env.signIn("alice")

	rec := env.do(http.MethodPost, "/api/v1/cart/items?wait=true", AddItemRequest{ProductID: "p1", Quantity: qty(1), Price: 1000})
	require.Equal(t, http.StatusOK, rec.Code)

	env.remote.setFail(apperrors.TransientRemote("cart service unavailable", nil))
	rec = env.do(http.MethodPost, "/api/v1/cart/items/p1/increase?wait=true", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "transient_remote_failure", body.Error.Reason)
	assert.True(t, body.Error.Retryable)

	var result mutationResult
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Equal(t, "rolled_back", result.Mutation.State)
	assert.Equal(t, map[string]int{"p1": 1}, quantities(result.State.Items))
}

func TestMutation_ExpiredSession(t *testing.T) {
	env := newTestEnv(t, "")
	env.signIn("alice")

	env.remote.setFail(apperrors.AuthenticationExpired("token expired", apperrors.Unauthorized("token expired")))
	rec := env.do(http.MethodPost, "/api/v1/cart/items?wait=true", AddItemRequest{ProductID: "p1", Quantity: qty(1)})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "authentication_expired", body.Error.Reason)
	assert.False(t, body.Error.Retryable)
}

func TestQuantityEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	env.signIn("alice")

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/cart/items?wait=true", AddItemRequest{ProductID: "p1", Quantity: qty(1), Price: 1000}).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/cart/items?wait=true", AddItemRequest{ProductID: "p2", Quantity: qty(1), Price: 500}).Code)

	rec := env.do(http.MethodPut, "/api/v1/cart/items/p1?wait=true", map[string]int{"quantity": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]int{"p1": 4, "p2": 1}, quantities(decodeMutation(t, rec).State.Items))

	rec = env.do(http.MethodPost, "/api/v1/cart/items/p2/increase?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, quantities(decodeMutation(t, rec).State.Items)["p2"])

	rec = env.do(http.MethodPost, "/api/v1/cart/items/p2/decrease?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, quantities(decodeMutation(t, rec).State.Items)["p2"])

	rec = env.do(http.MethodDelete, "/api/v1/cart/items/p2?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeMutation(t, rec).State
	assert.Equal(t, map[string]int{"p1": 4}, quantities(state.Items))
	assert.Equal(t, int64(4000), state.Total)

	rec = env.do(http.MethodPut, "/api/v1/cart/items/p1", map[string]int{"quantity": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode(t, rec).Error.Reason)

	rec = env.do(http.MethodPut, "/api/v1/cart/items/p1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/api/v1/cart?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeMutation(t, rec).State.Items)
	assert.Empty(t, env.remote.list(domain.KindCart))
}

func TestWishlist_QuantityRejected(t *testing.T) {
	env := newTestEnv(t, "")
	env.signIn("alice")

	rec := env.do(http.MethodPost, "/api/v1/wishlist/items/p1/increase", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// Session endpoints
// ============================================================================

func TestSession_SignInAndOut(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	session := decodeSession(t, rec)
	assert.Equal(t, "anonymous", session.Identity)
	assert.Equal(t, "profile-1", session.ProfileID)

	rec = env.do(http.MethodPut, "/api/v1/session/identity", map[string]string{"token": "Bearer " + signToken(t, "alice", time.Hour)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session = decodeSession(t, rec)
	assert.Equal(t, "authenticated", session.Identity)
	assert.Equal(t, "alice", session.UserID)
	require.NotNil(t, session.ExpiresAt)
	env.settle()

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/cart/items?wait=true", AddItemRequest{ProductID: "p1", Quantity: qty(1)}).Code)

	rec = env.do(http.MethodDelete, "/api/v1/session/identity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", decodeSession(t, rec).Identity)
	env.settle()

	state := decodeState(t, env.do(http.MethodGet, "/api/v1/cart", nil))
	assert.Empty(t, state.Items, "sign-out purges the local collection")
}

func TestSession_RejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, "")

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "mallory"})
	signed, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{"empty", "", http.StatusBadRequest},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"wrong signature", signed, http.StatusUnauthorized},
		{"expired", signToken(t, "alice", -time.Hour), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPut, "/api/v1/session/identity", map[string]string{"token": tt.token})
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	id, _ := env.monitor.Snapshot()
	assert.False(t, id.IsAuthenticated())
}

func TestSession_SwitchUserWithoutSignOut(t *testing.T) {
	env := newTestEnv(t, "")
	env.signIn("alice")

	rec := env.do(http.MethodPut, "/api/v1/session/identity", map[string]string{"token": signToken(t, "bob", time.Hour)})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSession_LoadingAfterResolution(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPut, "/api/v1/session/identity/loading", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSession_Network(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPut, "/api/v1/session/network", map[string]bool{"online": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeSession(t, rec).Online)
	env.settle()

	state := decodeState(t, env.do(http.MethodGet, "/api/v1/cart", nil))
	assert.False(t, state.Online)

	rec = env.do(http.MethodPut, "/api/v1/session/network", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// Cross-cutting
// ============================================================================

func TestAPIKey(t *testing.T) {
	env := newTestEnv(t, "local-key")

	rec := env.do(http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer local-key")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "probes bypass the API key")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, "local-key")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart/items", nil)
	req.Header.Set("Origin", "https://shop.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(http.MethodGet, "/api/v1/cart", nil)

	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"shop.test", "localhost:3000", "*"},
		OriginPatterns([]string{"https://shop.test", "http://localhost:3000", "not a url", "*"}))
}

// ============================================================================
// State stream
// ============================================================================

func TestStream_PushesStateChanges(t *testing.T) {
	env := newTestEnv(t, "")
	env.signIn("alice")

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/cart/stream", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg StreamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "state", msg.Type)
	assert.Empty(t, msg.Data.Items)
	first := msg.Data.Version

	rec := env.do(http.MethodPost, "/api/v1/cart/items?wait=true", AddItemRequest{ProductID: "p1", Quantity: qty(3), Price: 100})
	require.Equal(t, http.StatusOK, rec.Code)

	for {
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		assert.Greater(t, msg.Data.Version, first)
		if msg.Data.Pending == 0 && len(msg.Data.Items) == 1 {
			break
		}
	}
	assert.Equal(t, int64(300), msg.Data.Total)
}

func TestStream_UnknownKind(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodGet, "/api/v1/basket/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
