package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/stockroom/pkg/health"
	"github.com/xenking/stockroom/pkg/httpmiddleware"
)

// newTestServer serves the full middleware chain on in-memory storage.
func newTestServer(t *testing.T, mutate ...func(*Config)) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &Config{
		Storage:   StorageMemory,
		Paging:    PagingConfig{DefaultLimit: 100, MaxLimit: 1000},
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"*"}},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	lg := zaptest.NewLogger(t)
	hc := health.New(lg)
	st, err := openStores(ctx, lg, cfg, hc)
	require.NoError(t, err)
	hc.SetReady(true)

	h, err := newHandler(ctx, lg, cfg, st, hc, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, body := call(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.JSONEq(t, `{"status":"ok"}`, body)
	}
}

func TestOrderLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, body := call(t, srv, http.MethodPost, "/products/",
		`{"name":"Burr Grinder","description":"Conical","price":129.99,"quantity":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"id":1,"name":"Burr Grinder","description":"Conical","price":129.99,"quantity":2}`, body)

	resp, body = call(t, srv, http.MethodPost, "/orders/", `{"items":[{"productId":1,"quantity":2}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var orderID int64
	require.NoError(t, jx.DecodeStr(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "id" {
			return d.Skip()
		}
		v, err := d.Int64()
		orderID = v
		return err
	}))
	assert.EqualValues(t, 1, orderID)

	resp, body = call(t, srv, http.MethodGet, "/products/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"quantity":0`)

	resp, body = call(t, srv, http.MethodPost, "/orders", `{"items":[{"productId":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "not enough quantity of product 1")

	resp, body = call(t, srv, http.MethodPatch, "/orders/1/status", `{"status":"SENT"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"status":"SENT"`)

	resp, _ = call(t, srv, http.MethodDelete, "/products/1", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = call(t, srv, http.MethodGet, "/orders", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"items":[{"id":1,"productId":1,"quantity":2}]`)
}

func TestConcurrentLastUnit(t *testing.T) {
	srv := newTestServer(t)
	resp, body := call(t, srv, http.MethodPost, "/products", `{"name":"Last","price":1,"quantity":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	const callers = 6
	codes := make(chan int, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _ := call(t, srv, http.MethodPost, "/orders", `{"items":[{"productId":1,"quantity":1}]}`)
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	counts := make(map[int]int)
	for code := range codes {
		counts[code]++
	}
	assert.Equal(t, map[int]int{http.StatusOK: 1, http.StatusBadRequest: callers - 1}, counts)
}

func TestMiddlewareChain(t *testing.T) {
	// One request per hour; preflights are answered before the limiter.
	srv := newTestServer(t, func(c *Config) { c.RateLimit = RateLimitConfig{Max: 1, Window: time.Hour} })

	t.Run("request id", func(t *testing.T) {
		resp, _ := call(t, srv, http.MethodGet, "/livez", "")
		assert.Len(t, resp.Header.Get(httpmiddleware.RequestIDHeader), 36)
	})

	t.Run("cors preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, srv.URL+"/orders", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "https://shop.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "api_key")
	})

	t.Run("rate limit", func(t *testing.T) {
		resp, body := call(t, srv, http.MethodGet, "/products", "")
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Limit"))
		assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, body)
	})
}
