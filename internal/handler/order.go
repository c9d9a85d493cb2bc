package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/stockroom/internal/domain/order"
)

// PlaceOrder handles POST /orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodePlaceOrder(jx.DecodeBytes(data))
	if err != nil {
		writeError(w, r, badRequest(err))
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, func(e *jx.Encoder) { encodeOrder(e, *o) })
}

// ListOrders handles GET /orders?skip=&limit=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := h.page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.ListOrders(r.Context(), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, func(e *jx.Encoder) { encodeOrders(e, orders) })
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, func(e *jx.Encoder) { encodeOrder(e, *o) })
}

// UpdateOrderStatus handles PATCH /orders/{id}/status. The status is read
// from {"status": "..."} or, when the body is empty, from ?status=.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	raw := r.URL.Query().Get("status")
	if raw == "" {
		data, err := h.readBody(w, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if raw, err = decodeStatus(jx.DecodeBytes(data)); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
	}
	status, err := order.ParseStatus(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), id, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, func(e *jx.Encoder) { encodeOrder(e, *o) })
}
