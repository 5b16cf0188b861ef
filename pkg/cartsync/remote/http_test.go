package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/identity"
	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/pkg/logger"
)

type recorded struct {
	method string
	path   string
	query  string
	userID string
	auth   string
	body   map[string]any
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			userID: r.Header.Get("X-User-ID"),
			auth:   r.Header.Get("Authorization"),
		}
		if r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		calls = append(calls, rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := httpclient.Config{
		Timeout:      2 * time.Second,
		MaxRetries:   0,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
	}
	return NewHTTPClient(srv.URL+"/", httpclient.New(cfg), logger.Discard()), &calls
}

func userCtx() context.Context {
	return identity.NewContext(context.Background(), identity.User("u-1", "tok"))
}

func TestHTTPClient_Fetch(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"user_id":"u-1","items":[
			{"line_id":"P1:M:Red:abcd1234","product_id":"P1","name":"Tee","slug":"tee","image_url":"tee.png",
			 "price":2000,"sale_price":1500,"size":"M","color":"Red","quantity":2,"stock":5}]}}`))
	})

	snap, err := c.Fetch(userCtx())
	require.NoError(t, err)
	require.Len(t, snap, 1)

	line := snap[0]
	assert.Equal(t, "P1:M:Red:abcd1234", line.LineID)
	assert.Equal(t, "tee.png", line.Image)
	require.NotNil(t, line.SalePrice)
	assert.Equal(t, int64(1500), *line.SalePrice)
	assert.Equal(t, 5, line.Stock)

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/api/v1/cart", got.path)
	assert.Equal(t, "u-1", got.userID)
	assert.Equal(t, "Bearer tok", got.auth)
}

func TestHTTPClient_Mutations(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	ctx := userCtx()
	key := domain.Key{ProductID: "P 1", Size: "M", Color: "Dark Red"}

	require.NoError(t, c.AddLine(ctx, domain.Line{ProductID: "P1", Size: "M", Color: "Red", Quantity: 2, Price: 100, Stock: 4}))
	require.NoError(t, c.UpdateLine(ctx, key, 3))
	require.NoError(t, c.RemoveLine(ctx, key))
	require.NoError(t, c.Clear(ctx))

	require.Len(t, *calls, 4)

	assert.Equal(t, http.MethodPost, (*calls)[0].method)
	assert.Equal(t, "/api/v1/cart/items", (*calls)[0].path)
	assert.Equal(t, "P1", (*calls)[0].body["product_id"])
	assert.EqualValues(t, 2, (*calls)[0].body["quantity"])
	assert.EqualValues(t, 4, (*calls)[0].body["stock"])

	assert.Equal(t, http.MethodPut, (*calls)[1].method)
	assert.Equal(t, "/api/v1/cart/items/P 1", (*calls)[1].path)
	assert.Equal(t, "color=Dark+Red&size=M", (*calls)[1].query)
	assert.EqualValues(t, 3, (*calls)[1].body["quantity"])

	assert.Equal(t, http.MethodDelete, (*calls)[2].method)
	assert.Equal(t, "/api/v1/cart/items/P 1", (*calls)[2].path)

	assert.Equal(t, http.MethodDelete, (*calls)[3].method)
	assert.Equal(t, "/api/v1/cart", (*calls)[3].path)
}

func TestHTTPClient_RequiresAuthenticatedIdentity(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	err := c.Clear(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	err = c.Clear(identity.NewContext(context.Background(), identity.Guest()))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	assert.Empty(t, *calls)
}

func TestHTTPClient_MapsErrorResponses(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"OUT_OF_STOCK","message":"sold out"}}`))
	})

	err := c.AddLine(userCtx(), domain.Line{ProductID: "P1", Quantity: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrOutOfStock))
}

func TestHTTPClient_TransportFailure(t *testing.T) {
	cfg := httpclient.Config{Timeout: 200 * time.Millisecond}
	c := NewHTTPClient("http://127.0.0.1:1", httpclient.New(cfg), logger.Discard())

	err := c.Clear(userCtx())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call cart service (clear)")
}
