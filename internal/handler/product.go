package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/stockroom/internal/catalog"
)

// CreateProduct handles POST /products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := catalog.DecodeProduct(jx.DecodeBytes(data))
	if err != nil {
		writeError(w, r, badRequest(err))
		return
	}
	if err := h.products.Create(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, func(e *jx.Encoder) { catalog.EncodeProduct(e, p) })
}

// ListProducts handles GET /products?skip=&limit=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := h.page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	products, err := h.products.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, func(e *jx.Encoder) { encodeProducts(e, products) })
}

// GetProduct handles GET /products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, func(e *jx.Encoder) { catalog.EncodeProduct(e, *p) })
}

// UpdateProduct handles PUT /products/{id}. Fields missing from the body
// keep their stored values.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := decodeProductUpdate(jx.DecodeBytes(data), p); err != nil {
		writeError(w, r, badRequest(err))
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Update(r.Context(), p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, func(e *jx.Encoder) { catalog.EncodeProduct(e, *p) })
}

// DeleteProduct handles DELETE /products/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Product deleted successfully")
		e.ObjEnd()
	})
}
