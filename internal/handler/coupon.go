package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/almacart/commerce/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ValidateCoupon dry-runs coupon eligibility against a subtotal without
// redeeming anything. A rejected coupon is a 200 with valid=false, so
// storefronts can show the reason inline.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r)

	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "code is required")
		return
	}

	c, discount, err := h.coupons.Evaluate(r.Context(), req.Code, req.Subtotal, ident.UserID)
	if err != nil {
		var rejected *coupon.RejectedError
		if errors.As(err, &rejected) {
			writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("valid", func(e *jx.Encoder) { e.Bool(false) })
					e.Field("reason", func(e *jx.Encoder) { e.Str(string(rejected.Reason)) })
					e.Field("message", func(e *jx.Encoder) { e.Str(rejected.Message) })
				})
			})
			return
		}
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
			e.Field("discount", func(e *jx.Encoder) { e.Str(discount.StringFixed(2)) })
		})
	})
}
