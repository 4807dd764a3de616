package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/paper-ledger/internal/api"
	"github.com/atmx/paper-ledger/internal/auth"
	"github.com/atmx/paper-ledger/internal/events"
	"github.com/atmx/paper-ledger/internal/ledger"
	"github.com/atmx/paper-ledger/internal/payment"
	"github.com/atmx/paper-ledger/internal/store"
)

const apiKey = "test-key"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv creates a router over an in-memory ledger with gateway auth.
func newTestEnv(t *testing.T) (*events.Recorder, chi.Router) {
	t.Helper()
	rec := &events.Recorder{}
	l := ledger.New(ledger.Options{
		Store:     store.NewMemoryStore(),
		Payments:  payment.NewMemoryWallets(1_000_000_000),
		Publisher: rec,
		Logger:    discardLogger(),
	})
	h := api.NewHandler(l, discardLogger())

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.Mount(r, auth.Middleware(auth.NewGatewayAuthenticator(apiKey), discardLogger()))
	})
	return rec, r
}

func do(t *testing.T, router chi.Router, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-API-Key", apiKey)
		req.Header.Set(auth.HeaderIdentity, caller)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["kind"]
}

func setup(t *testing.T, router chi.Router, owners ...string) {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/config", "admin", map[string]any{"treasury": "treasury"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	for _, o := range owners {
		w := do(t, router, "POST", "/api/v1/accounts", o, map[string]any{"entry_fee": 100_000_000})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
}

func buy(amount, price uint64) map[string]any {
	return map[string]any{"side": "YES", "market_id": "market-1", "amount_usdc": amount, "price_per_share": price}
}

func TestLifecycle(t *testing.T) {
	rec, router := newTestEnv(t)
	setup(t, router)

	w := do(t, router, "POST", "/api/v1/accounts", "alice", map[string]any{"entry_fee": 100_000_000})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var acct api.AccountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acct))
	assert.Equal(t, "alice", acct.Owner)
	assert.Equal(t, uint64(10_000_000_000), acct.Balance)
	assert.True(t, acct.BalanceUSD.Equal(decimal.NewFromInt(10_000)))

	w = do(t, router, "POST", "/api/v1/positions", "alice", buy(1_000_000, 500_000))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var pos api.PositionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pos))
	assert.Equal(t, uint64(0), pos.PositionID)
	assert.Equal(t, uint64(2_000_000), pos.Shares)
	assert.True(t, pos.ShareAmount.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "active", string(pos.Status))

	w = do(t, router, "POST", "/api/v1/positions/0/close", "alice", map[string]any{"current_price": 750_000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var closed api.CloseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &closed))
	assert.Equal(t, uint64(1_500_000), closed.Payout)
	assert.Equal(t, uint64(10_000_500_000), closed.Balance)
	assert.True(t, closed.BalanceUSD.Equal(decimal.RequireFromString("10000.5")))
	assert.Equal(t, "closed", string(closed.Position.Status))

	w = do(t, router, "POST", "/api/v1/positions/0/close", "alice", map[string]any{"current_price": 750_000})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PositionNotActive", errorKind(t, w))

	w = do(t, router, "GET", "/api/v1/accounts/alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acct))
	assert.Equal(t, uint64(10_000_500_000), acct.Balance)
	assert.Equal(t, uint64(1), acct.TotalTrades)

	var list []api.PositionResponse
	w = do(t, router, "GET", "/api/v1/accounts/alice/positions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(t, router, "GET", "/api/v1/accounts/alice/positions?status=active", "", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)

	var names []string
	for _, e := range rec.Events {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{
		events.ConfigInitialized, events.AccountInitialized, events.PredictionMade, events.PositionClosed,
	}, names)
}

func TestInitConfig_Twice(t *testing.T) {
	_, router := newTestEnv(t)
	setup(t, router)

	w := do(t, router, "POST", "/api/v1/config", "admin", map[string]any{"treasury": "elsewhere"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyInitialized", errorKind(t, w))

	w = do(t, router, "GET", "/api/v1/config", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"treasury":"treasury"`)
}

func TestCreateAccount_Rejections(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/accounts", "alice", map[string]any{"entry_fee": 100_000_000})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NotInitialized", errorKind(t, w))

	setup(t, router, "alice")

	w = do(t, router, "POST", "/api/v1/accounts", "bob", map[string]any{"entry_fee": 50_000_000})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "EntryFeeTooLow", errorKind(t, w))

	w = do(t, router, "POST", "/api/v1/accounts", "alice", map[string]any{"entry_fee": 100_000_000})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyExists", errorKind(t, w))

	w = do(t, router, "POST", "/api/v1/accounts", "carol", map[string]any{"entry_fee": 2_000_000_000})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "PaymentFailed", errorKind(t, w))

	w = do(t, router, "GET", "/api/v1/accounts/carol", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBuy_Rejections(t *testing.T) {
	_, router := newTestEnv(t)
	setup(t, router, "alice", "bob")

	w := do(t, router, "POST", "/api/v1/positions", "alice", buy(1_000_000, 0))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "InvalidPrice", errorKind(t, w))

	w = do(t, router, "POST", "/api/v1/positions", "alice", buy(20_000_000_000, 500_000))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "InsufficientBalance", errorKind(t, w))

	long := buy(1, 1)
	long["market_id"] = strings.Repeat("x", 33)
	w = do(t, router, "POST", "/api/v1/positions", "alice", long)
	assert.Equal(t, "InvalidMarketID", errorKind(t, w))

	foreign := buy(1_000_000, 500_000)
	foreign["owner"] = "alice"
	w = do(t, router, "POST", "/api/v1/positions", "bob", foreign)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Unauthorized", errorKind(t, w))

	w = do(t, router, "POST", "/api/v1/positions", "alice", map[string]any{"side": "MAYBE", "amount_usdc": 1, "price_per_share": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "InvalidSide", errorKind(t, w))

	w = do(t, router, "POST", "/api/v1/positions", "alice", map[string]any{"side": "YES"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// None of the rejections touched alice's account.
	var acct api.AccountResponse
	w = do(t, router, "GET", "/api/v1/accounts/alice", "", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acct))
	assert.Equal(t, uint64(10_000_000_000), acct.Balance)
	assert.Equal(t, uint64(0), acct.TotalTrades)
}

func TestClose_ForeignCaller(t *testing.T) {
	_, router := newTestEnv(t)
	setup(t, router, "alice", "bob")

	w := do(t, router, "POST", "/api/v1/positions", "alice", buy(1_000_000, 500_000))
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, router, "POST", "/api/v1/positions/0/close", "bob", map[string]any{"owner": "alice", "current_price": 1_000_000})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, router, "GET", "/api/v1/accounts/alice/positions/0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"active"`)
}

func TestPositionPaths(t *testing.T) {
	_, router := newTestEnv(t)
	setup(t, router, "alice")

	w := do(t, router, "GET", "/api/v1/accounts/alice/positions/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "GET", "/api/v1/accounts/alice/positions/9", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", errorKind(t, w))

	w = do(t, router, "POST", "/api/v1/positions/9/close", "alice", map[string]any{"current_price": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, "GET", "/api/v1/accounts/nobody/positions", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommandsRequireAuthentication(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/config", "", map[string]any{"treasury": "t"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthenticated", errorKind(t, w))

	w = do(t, router, "GET", "/api/v1/config", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NotInitialized", errorKind(t, w))
}

func TestWSHub_DeliversOwnerEvents(t *testing.T) {
	hub := api.NewWSHub(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?owner=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ev := events.New(events.PredictionMade, "alice", 1, map[string]any{"market_id": "m"})
	require.NoError(t, hub.Publish(ctx, events.New(events.PredictionMade, "bob", 1, nil)))
	require.NoError(t, hub.Publish(ctx, ev))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got events.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, "websocket", hub.Name())
}
