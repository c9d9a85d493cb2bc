// Package handler implements the REST API on top of the catalog repository
// and the order service.
package handler

import (
	"net/http"

	"github.com/xenking/stockroom/internal/domain/auth"
	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/domain/product"
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// DefaultLimit is the page size used when the request has no "limit".
	DefaultLimit int
	// MaxLimit caps the "limit" query parameter.
	MaxLimit int
	// MaxBodyBytes limits request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
}

const (
	defaultLimit    = 100
	defaultMaxLimit = 1000
	defaultMaxBody  = 1 << 20
)

// Handler serves the product and order routes.
type Handler struct {
	products product.Repository
	orders   *order.Service
	authn    *auth.Authenticator

	defaultLimit int
	maxLimit     int
	maxBody      int64
}

// NewHandler constructs a Handler. A nil authn leaves catalog writes open.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	orders *order.Service,
	authn *auth.Authenticator,
) *Handler {
	h := &Handler{
		products:     products,
		orders:       orders,
		authn:        authn,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		maxBody:      cfg.MaxBodyBytes,
	}
	if h.maxLimit <= 0 {
		h.maxLimit = defaultMaxLimit
	}
	if h.defaultLimit <= 0 {
		h.defaultLimit = min(defaultLimit, h.maxLimit)
	}
	if h.maxBody <= 0 {
		h.maxBody = defaultMaxBody
	}
	return h
}

// Register adds the API routes to mux. Collection routes answer both with
// and without the trailing slash.
func (h *Handler) Register(mux *http.ServeMux) {
	write := h.requireScope(auth.ScopeCatalogWrite)

	for _, base := range []string{"/products", "/products/{$}"} {
		mux.Handle("POST "+base, write(http.HandlerFunc(h.CreateProduct)))
		mux.HandleFunc("GET "+base, h.ListProducts)
	}
	mux.HandleFunc("GET /products/{id}", h.GetProduct)
	mux.Handle("PUT /products/{id}", write(http.HandlerFunc(h.UpdateProduct)))
	mux.Handle("DELETE /products/{id}", write(http.HandlerFunc(h.DeleteProduct)))

	for _, base := range []string{"/orders", "/orders/{$}"} {
		mux.HandleFunc("POST "+base, h.PlaceOrder)
		mux.HandleFunc("GET "+base, h.ListOrders)
	}
	mux.HandleFunc("GET /orders/{id}", h.GetOrder)
	mux.HandleFunc("PATCH /orders/{id}/status", h.UpdateOrderStatus)
}

// Mux returns a new ServeMux with the API routes registered.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}
