package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeItem struct {
	LineID    string `json:"line_id,omitempty"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
}

// fakeCartService keeps one cart per X-User-ID and speaks the cart API.
type fakeCartService struct {
	mu         sync.Mutex
	requests   []string
	carts      map[string][]fakeItem
	rejectAdds bool
}

func newFakeCartService() *fakeCartService {
	return &fakeCartService{carts: make(map[string][]fakeItem)}
}

func (f *fakeCartService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	user := r.Header.Get("X-User-ID")
	items := f.carts[user]

	switch {
	case r.URL.Path == "/api/v1/cart" && r.Method == http.MethodDelete:
		items = nil
	case r.URL.Path == "/api/v1/cart/items" && r.Method == http.MethodPost:
		if f.rejectAdds {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"INVALID_INPUT","message":"rejected"}}`))
			return
		}
		var in fakeItem
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		items = addFakeItem(items, in)
	case strings.HasPrefix(r.URL.Path, "/api/v1/cart/items/"):
		productID := strings.TrimPrefix(r.URL.Path, "/api/v1/cart/items/")
		q := r.URL.Query()
		for i, it := range items {
			if it.ProductID != productID || it.Size != q.Get("size") || it.Color != q.Get("color") {
				continue
			}
			if r.Method == http.MethodDelete {
				items = append(items[:i:i], items[i+1:]...)
				break
			}
			var body struct {
				Quantity int `json:"quantity"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			items[i].Quantity = body.Quantity
			break
		}
	}
	f.carts[user] = items

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{"user_id": user, "items": items},
	})
}

func addFakeItem(items []fakeItem, in fakeItem) []fakeItem {
	for i := range items {
		if items[i].ProductID == in.ProductID && items[i].Size == in.Size && items[i].Color == in.Color {
			items[i].Quantity += in.Quantity
			items[i].Stock = in.Stock
			return items
		}
	}
	return append(items, in)
}

// Add changes a user's cart the way another device would.
func (f *fakeCartService) Add(userID string, it fakeItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[userID] = addFakeItem(f.carts[userID], it)
}

func (f *fakeCartService) Quantities(userID string) map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, it := range f.carts[userID] {
		out[it.ProductID] += it.Quantity
	}
	return out
}

func (f *fakeCartService) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeCartService) RejectAdds() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectAdds = true
}

func startFakeCartService(t *testing.T) (*fakeCartService, string) {
	t.Helper()
	svc := newFakeCartService()
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	return svc, srv.URL
}

func setupEnv(t *testing.T, remoteURL string) string {
	t.Helper()
	state := filepath.Join(t.TempDir(), "cart.json")
	t.Setenv("CARTSYNC_STATE_FILE", state)
	t.Setenv("CARTSYNC_REMOTE_URL", remoteURL)
	t.Setenv("CARTSYNC_JSON", "true")
	t.Setenv("CARTSYNC_LOG_LEVEL", "error")
	return state
}

func runJSON(t *testing.T, args ...string) cartView {
	t.Helper()
	var out, errOut bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out, &errOut), errOut.String())

	var v cartView
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	return v
}

func TestGuestCommandsPersistAcrossRuns(t *testing.T) {
	state := setupEnv(t, "http://127.0.0.1:1")

	v := runJSON(t, "add", "-product", "p1", "-size", "M", "-color", "red", "-price", "2500", "-stock", "5", "-qty", "2")
	require.Len(t, v.Lines, 1)
	assert.Equal(t, "guest", v.State)
	assert.Equal(t, 2, v.Count)
	assert.Equal(t, int64(5000), v.Subtotal)
	assert.FileExists(t, state)

	lineID := v.Lines[0].LineID

	v = runJSON(t, "update", "-line", lineID, "-qty", "9")
	assert.Equal(t, 5, v.Lines[0].Quantity, "clamped to stock")

	v = runJSON(t, "show")
	assert.Equal(t, 5, v.Count)

	v = runJSON(t, "remove", "-line", lineID)
	assert.Empty(t, v.Lines)
}

func TestRedisBackedCart(t *testing.T) {
	state := setupEnv(t, "http://127.0.0.1:1")
	mr := miniredis.RunT(t)
	t.Setenv("CARTSYNC_REDIS_ADDR", mr.Addr())
	t.Setenv("CARTSYNC_DEVICE_ID", "kiosk-7")

	runJSON(t, "add", "-product", "p1", "-price", "900", "-stock", "5", "-qty", "3")

	v := runJSON(t, "show")
	assert.Equal(t, 3, v.Count)
	assert.True(t, mr.Exists("cartsync:snapshot:kiosk-7"))
	assert.NoFileExists(t, state)
}

func TestAddWithSalePrice(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	v := runJSON(t, "add", "-product", "p1", "-price", "2000", "-sale", "1500", "-stock", "3")
	assert.Equal(t, int64(1500), v.Subtotal)
}

func TestAddOutOfStockFails(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{"add", "-product", "p1", "-price", "100", "-stock", "0"}, &out, &errOut)
	assert.Error(t, err)
}

func TestLoginMergesAndLogoutKeepsCart(t *testing.T) {
	svc, url := startFakeCartService(t)
	state := setupEnv(t, url)

	runJSON(t, "add", "-product", "p1", "-price", "1000", "-stock", "4", "-qty", "2")

	v := runJSON(t, "login", "-user", "u-1", "-secret", "dev-secret")
	assert.Equal(t, "authenticated", v.State)
	assert.Equal(t, "u-1", v.User)
	assert.Equal(t, 2, v.Count)
	assert.FileExists(t, state+".identity")

	// Remote cart was empty, so the local cart is pushed after a clear.
	assert.Equal(t, []string{
		"GET /api/v1/cart",
		"DELETE /api/v1/cart",
		"POST /api/v1/cart/items",
	}, svc.Requests())
	assert.Equal(t, map[string]int{"p1": 2}, svc.Quantities("u-1"))

	v = runJSON(t, "logout")
	assert.Equal(t, "guest", v.State)
	assert.Equal(t, 2, v.Count)
	_, err := os.Stat(state + ".identity")
	assert.True(t, os.IsNotExist(err))
}

func TestSignedInRunsDoNotMergeAgain(t *testing.T) {
	svc, url := startFakeCartService(t)
	setupEnv(t, url)

	runJSON(t, "add", "-product", "p1", "-price", "1000", "-stock", "10", "-qty", "2")
	runJSON(t, "login", "-user", "u-1", "-secret", "dev-secret")
	require.Equal(t, map[string]int{"p1": 2}, svc.Quantities("u-1"))

	// Another device changes the account cart, including a sold-out line.
	svc.Add("u-1", fakeItem{ProductID: "p2", Name: "Mug", Price: 500, Quantity: 1, Stock: 5})
	svc.Add("u-1", fakeItem{LineID: "p3:::gone", ProductID: "p3", Name: "Cap", Price: 700, Quantity: 1, Stock: 0})

	for range 2 {
		v := runJSON(t, "show")
		assert.Equal(t, "authenticated", v.State)
		assert.Equal(t, 4, v.Count)
		assert.Equal(t, []string{"p3:::gone"}, v.Unavailable)
		assert.Equal(t, map[string]int{"p1": 2, "p2": 1, "p3": 1}, svc.Quantities("u-1"))
	}

	v := runJSON(t, "add", "-product", "p1", "-price", "1000", "-stock", "10", "-qty", "1")
	assert.Equal(t, 5, v.Count)
	assert.Equal(t, map[string]int{"p1": 3, "p2": 1, "p3": 1}, svc.Quantities("u-1"))
}

func TestRemoteFailureIsReportedNotFatal(t *testing.T) {
	svc, url := startFakeCartService(t)
	setupEnv(t, url)

	runJSON(t, "login", "-user", "u-1", "-secret", "dev-secret")
	svc.RejectAdds()

	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{"add", "-product", "p1", "-price", "100", "-stock", "3"}, &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, errOut.String(), "account cart not updated")
	assert.Contains(t, errOut.String(), "add_line")

	var v cartView
	require.NoError(t, json.Unmarshal(out.Bytes(), &v))
	assert.Equal(t, 1, v.Count, "the device keeps the change")
	assert.Empty(t, svc.Quantities("u-1"))
}

func TestRefreshRequiresLogin(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{"refresh"}, &out, &errOut)
	assert.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{"checkout"}, &out, &errOut)
	require.Error(t, err)
	assert.Contains(t, errOut.String(), "Usage:")
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0.05", money(5))
	assert.Equal(t, "25.00", money(2500))
	assert.Equal(t, "-1.50", money(-150))
}
