package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/almacart/commerce/internal/domain/address"
	"github.com/almacart/commerce/internal/domain/checkout"
	"github.com/almacart/commerce/internal/domain/order"
)

type checkoutAddress struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	FullAddress string `json:"full_address"`
	Country     string `json:"country"`
	District    string `json:"district"`
	PostalCode  string `json:"postal_code"`
	Email       string `json:"email"`
}

type checkoutRequest struct {
	AddressID     uuid.UUID        `json:"address_id"`
	Address       *checkoutAddress `json:"address"`
	CouponCode    string           `json:"coupon_code"`
	PaymentMethod string           `json:"payment_method"`
	ShippingFee   string           `json:"shipping_fee"`
	Notes         string           `json:"notes"`
}

// Checkout places an order from the caller's active cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = checkout.MethodCOD
	}

	domainReq := checkout.Request{
		AddressID:     req.AddressID,
		CouponCode:    req.CouponCode,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	}
	if req.ShippingFee != "" {
		fee, err := decimal.NewFromString(req.ShippingFee)
		if err != nil || fee.IsNegative() {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid shipping_fee")
			return
		}
		domainReq.ShippingFee = &fee
	}
	if req.Address != nil {
		domainReq.Address = &address.Address{
			Name:        req.Address.Name,
			Phone:       req.Address.Phone,
			FullAddress: req.Address.FullAddress,
			Country:     req.Address.Country,
			District:    req.Address.District,
			PostalCode:  req.Address.PostalCode,
			Email:       req.Address.Email,
		}
	}

	res, err := h.checkout.Checkout(r.Context(), ident, domainReq)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, res.Order, res.Items, res.Payment)
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order, items []order.Item, p *order.Payment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID.String()) })
		e.Field("number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(o.Subtotal.StringFixed(2)) })
		e.Field("discount", func(e *jx.Encoder) { e.Str(o.Discount.StringFixed(2)) })
		e.Field("shipping_fee", func(e *jx.Encoder) { e.Str(o.ShippingFee.StringFixed(2)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		if o.CouponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		if o.Notes != "" {
			e.Field("notes", func(e *jx.Encoder) { e.Str(o.Notes) })
		}
		e.Field("placed_at", func(e *jx.Encoder) { e.Str(o.PlacedAt.UTC().Format(time.RFC3339)) })
		if o.ShippedAt != nil {
			e.Field("shipped_at", func(e *jx.Encoder) { e.Str(o.ShippedAt.UTC().Format(time.RFC3339)) })
		}
		if items != nil {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range items {
						encodeOrderItem(e, &items[i])
					}
				})
			})
		}
		if p != nil {
			e.Field("payment", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("method", func(e *jx.Encoder) { e.Str(p.Method) })
					e.Field("status", func(e *jx.Encoder) { e.Str(string(p.Status)) })
					e.Field("amount", func(e *jx.Encoder) { e.Str(p.Amount.StringFixed(2)) })
				})
			})
		}
	})
}

func encodeOrderItem(e *jx.Encoder, it *order.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("sku", func(e *jx.Encoder) { e.Str(it.SKU) })
		e.Field("product_name", func(e *jx.Encoder) { e.Str(it.ProductName) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("unit_price", func(e *jx.Encoder) { e.Str(it.UnitPrice.StringFixed(2)) })
		e.Field("total_price", func(e *jx.Encoder) { e.Str(it.TotalPrice.StringFixed(2)) })
	})
}
