package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/almacart/commerce/internal/domain/inventory"
)

// VariantAvailability returns the derived available quantity for a variant.
func (h *Handler) VariantAvailability(w http.ResponseWriter, r *http.Request) {
	variantID, err := uuid.Parse(r.PathValue("variantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid variant id")
		return
	}

	available, err := h.ledger.Available(r.Context(), variantID)
	if err != nil {
		if errors.Is(err, inventory.ErrNotTracked) {
			writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("variant_id", func(e *jx.Encoder) { e.Str(variantID.String()) })
					e.Field("tracked", func(e *jx.Encoder) { e.Bool(false) })
				})
			})
			return
		}
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("variant_id", func(e *jx.Encoder) { e.Str(variantID.String()) })
			e.Field("tracked", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("available", func(e *jx.Encoder) { e.Int(available) })
		})
	})
}

type adjustStockRequest struct {
	Delta int    `json:"delta"`
	Note  string `json:"note"`
}

// AdjustStock applies an administrative stock correction: an ADJUSTMENT
// ledger entry plus an on-hand delta. A zero delta is rejected.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	variantID, err := uuid.Parse(r.PathValue("variantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid variant id")
		return
	}

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "delta must be non-zero")
		return
	}

	if err := h.ledger.Adjust(r.Context(), variantID, req.Delta, req.Note); err != nil {
		respondError(w, r, err)
		return
	}

	available, err := h.ledger.Available(r.Context(), variantID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("variant_id", func(e *jx.Encoder) { e.Str(variantID.String()) })
			e.Field("available", func(e *jx.Encoder) { e.Int(available) })
		})
	})
}
