package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/almacart/commerce/internal/domain/cart"
)

type addItemRequest struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// GetCart returns the caller's active cart with its lines, creating it (and
// merging a guest cart into the user cart) on first access.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	c, items, err := h.carts.Items(r.Context(), ident)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c, items) })
}

// AddCartItem adds a variant to the cart or increments an existing line.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	item, err := h.carts.AddItem(r.Context(), ident, req.VariantID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCartItem(e, item) })
}

// UpdateCartItem sets a line's quantity. Quantity below one removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	variantID, err := uuid.Parse(r.PathValue("variantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid variant id")
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	item, err := h.carts.UpdateItem(r.Context(), ident, variantID, req.Quantity)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if item == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartItem(e, item) })
}

// RemoveCartItem deletes a line from the cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	variantID, err := uuid.Parse(r.PathValue("variantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid variant id")
		return
	}

	if err := h.carts.RemoveItem(r.Context(), ident, variantID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeCart(e *jx.Encoder, c *cart.Cart, items []cart.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID.String()) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(c.Status)) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(c.Subtotal.StringFixed(2)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range items {
					encodeCartItem(e, &items[i])
				}
			})
		})
	})
}

func encodeCartItem(e *jx.Encoder, it *cart.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("variant_id", func(e *jx.Encoder) { e.Str(it.VariantID.String()) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(it.SKU) })
		e.Field("product_name", func(e *jx.Encoder) { e.Str(it.ProductName) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("unit_price", func(e *jx.Encoder) { e.Str(it.UnitPrice.StringFixed(2)) })
		e.Field("line_total", func(e *jx.Encoder) { e.Str(it.LineTotal.StringFixed(2)) })
	})
}
