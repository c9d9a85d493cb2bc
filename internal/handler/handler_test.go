package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
	"github.com/xenking/stockroom/internal/storage/memory"
)

// --- Mock implementations ---

type mockAPIKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.keys[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return info, nil
}

// brokenProducts fails every catalog read.
type brokenProducts struct {
	product.Repository
}

func (brokenProducts) List(context.Context, int, int) ([]product.Product, error) {
	return nil, errors.New("connection reset")
}

// --- Helpers ---

var testNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

type testServer struct {
	store *memory.Store
	mux   *http.ServeMux
}

func newTestServer(t *testing.T, authn *auth.Authenticator) *testServer {
	t.Helper()
	store := memory.New()
	svc, err := order.NewService(store, order.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	h := NewHandler(HandlerConfig{DefaultLimit: 2, MaxLimit: 10}, store, svc, authn)
	return &testServer{store: store, mux: h.Mux()}
}

func (s *testServer) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	return w
}

func (s *testServer) seed(t *testing.T, name, price string, qty int) int64 {
	t.Helper()
	p := &product.Product{Name: name, Price: decimal.RequireFromString(price), Quantity: qty}
	require.NoError(t, s.store.Create(context.Background(), p))
	return p.ID
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) (code int, msg string) {
	t.Helper()
	err := jx.DecodeBytes(w.Body.Bytes()).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			code, err = d.Int()
		case "message":
			msg, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	require.NoError(t, err, "body: %s", w.Body.String())
	return code, msg
}

// --- Product tests ---

func TestCreateProduct(t *testing.T) {
	s := newTestServer(t, nil)

	for _, target := range []string{"/products/", "/products"} {
		w := s.do(t, http.MethodPost, target,
			`{"name":"Kettle `+target+`","description":"Gooseneck","price":59.9,"quantity":4}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	}

	w := s.do(t, http.MethodGet, "/products/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"id":1,"name":"Kettle /products/","description":"Gooseneck","price":59.90,"quantity":4}`,
		w.Body.String(),
	)
}

func TestCreateProduct_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	s.seed(t, "Kettle", "10", 1)

	for _, tt := range []struct {
		name   string
		body   string
		status int
	}{
		{name: "empty body", body: "", status: http.StatusUnprocessableEntity},
		{name: "malformed", body: `{"name":`, status: http.StatusUnprocessableEntity},
		{name: "missing price", body: `{"name":"x","quantity":1}`, status: http.StatusUnprocessableEntity},
		{name: "negative quantity", body: `{"name":"x","price":1,"quantity":-1}`, status: http.StatusUnprocessableEntity},
		{name: "three decimals", body: `{"name":"x","price":1.005,"quantity":1}`, status: http.StatusUnprocessableEntity},
		{name: "quantity over int4", body: `{"name":"x","price":1,"quantity":3000000000}`, status: http.StatusUnprocessableEntity},
		{name: "price of 1e10", body: `{"name":"x","price":10000000000,"quantity":1}`, status: http.StatusUnprocessableEntity},
		{name: "duplicate name", body: `{"name":"Kettle","price":1,"quantity":1}`, status: http.StatusConflict},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/products/", tt.body)
			assert.Equal(t, tt.status, w.Code)
			code, msg := errorBody(t, w)
			assert.Equal(t, tt.status, code)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestListProducts_Paging(t *testing.T) {
	s := newTestServer(t, nil)
	for _, name := range []string{"a", "b", "c"} {
		s.seed(t, name, "1.00", 1)
	}

	countOf := func(w *httptest.ResponseRecorder) int {
		n := 0
		require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Arr(func(d *jx.Decoder) error {
			n++
			return d.Skip()
		}))
		return n
	}

	w := s.do(t, http.MethodGet, "/products/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, countOf(w), "default limit applies")

	w = s.do(t, http.MethodGet, "/products?skip=2&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, countOf(w))

	for _, q := range []string{"skip=-1", "limit=0", "limit=11", "limit=abc"} {
		w = s.do(t, http.MethodGet, "/products?"+q, "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, q)
	}
}

func TestGetProduct_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/products/42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	_, msg := errorBody(t, w)
	assert.Equal(t, product.ErrNotFound.Error(), msg)

	w = s.do(t, http.MethodGet, "/products/abc", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodGet, "/products/0", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUpdateProduct(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.seed(t, "Kettle", "10.00", 3)

	w := s.do(t, http.MethodPut, "/products/1", `{"quantity": 7, "description": "Steel"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t,
		`{"id":1,"name":"Kettle","description":"Steel","price":10.00,"quantity":7}`,
		w.Body.String(),
	)

	w = s.do(t, http.MethodPut, "/products/1", `{"description": null, "price": "12.5"}`)
	require.Equal(t, http.StatusOK, w.Code)
	p, err := s.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, p.Description)
	assert.Equal(t, "12.5", p.Price.String())

	w = s.do(t, http.MethodPut, "/products/1", `{"name": null}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = s.do(t, http.MethodPut, "/products/1", `{"quantity": -4}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = s.do(t, http.MethodPut, "/products/9", `{"quantity": 1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	p, err = s.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Quantity, "rejected updates leave the product unchanged")
}

func TestDeleteProduct(t *testing.T) {
	s := newTestServer(t, nil)
	free := s.seed(t, "Free", "1.00", 1)
	ordered := s.seed(t, "Ordered", "1.00", 5)

	w := s.do(t, http.MethodPost, "/orders/", `{"items":[{"productId":2,"quantity":1}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodDelete, "/products/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Product deleted successfully"}`, w.Body.String())
	_, err := s.store.GetByID(context.Background(), free)
	require.ErrorIs(t, err, product.ErrNotFound)

	w = s.do(t, http.MethodDelete, "/products/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/products/2", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	_, err = s.store.GetByID(context.Background(), ordered)
	require.NoError(t, err)
}

func TestInternalErrorIsHidden(t *testing.T) {
	svc, err := order.NewService(memory.New())
	require.NoError(t, err)
	mux := NewHandler(HandlerConfig{}, brokenProducts{}, svc, nil).Mux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/products", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"message":"internal server error"}`, w.Body.String())
}

// --- Auth tests ---

func TestCatalogWritesRequireKey(t *testing.T) {
	pepper := []byte("pepper")
	keys := &mockAPIKeyRepo{keys: map[string]*auth.APIKeyInfo{
		auth.HashKey(pepper, "writer"): {
			ID: "writer", KeyHash: auth.HashKey(pepper, "writer"), Scopes: []string{auth.ScopeCatalogWrite},
		},
		auth.HashKey(pepper, "reader"): {
			ID: "reader", KeyHash: auth.HashKey(pepper, "reader"),
		},
	}}
	s := newTestServer(t, auth.NewAuthenticator(keys, pepper))
	body := `{"name":"Kettle","price":1,"quantity":1}`

	for _, tt := range []struct {
		name    string
		headers []string
		status  int
	}{
		{name: "missing key", status: http.StatusUnauthorized},
		{name: "unknown key", headers: []string{APIKeyHeader, "nope"}, status: http.StatusUnauthorized},
		{name: "missing scope", headers: []string{APIKeyHeader, "reader"}, status: http.StatusUnauthorized},
		{name: "granted", headers: []string{APIKeyHeader, "writer"}, status: http.StatusOK},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/products", body, tt.headers...)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	// Reads and orders stay open.
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/products/1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodDelete, "/products/1", "").Code)
	w := s.do(t, http.MethodPost, "/orders", `{"items":[{"productId":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusOK, w.Code)
}
