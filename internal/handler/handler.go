// Package handler exposes the order engine over HTTP. Handlers decode
// requests, resolve the caller's identity, delegate to the domain services,
// and map domain errors to status codes.
package handler

import (
	"net/http"

	"github.com/almacart/commerce/internal/domain/cart"
	"github.com/almacart/commerce/internal/domain/checkout"
	"github.com/almacart/commerce/internal/domain/coupon"
	"github.com/almacart/commerce/internal/domain/inventory"
	"github.com/almacart/commerce/internal/domain/lifecycle"
	"github.com/almacart/commerce/internal/domain/order"
)

// Handler serves the order engine API.
type Handler struct {
	carts     *cart.Service
	checkout  *checkout.Service
	lifecycle *lifecycle.Service
	orders    order.Repository
	coupons   *coupon.Evaluator
	ledger    inventory.Ledger
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	carts *cart.Service,
	co *checkout.Service,
	lc *lifecycle.Service,
	orders order.Repository,
	coupons *coupon.Evaluator,
	ledger inventory.Ledger,
) *Handler {
	return &Handler{
		carts:     carts,
		checkout:  co,
		lifecycle: lc,
		orders:    orders,
		coupons:   coupons,
		ledger:    ledger,
	}
}

// Routes returns the API route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart/items", h.AddCartItem)
	mux.HandleFunc("PUT /api/cart/items/{variantID}", h.UpdateCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{variantID}", h.RemoveCartItem)

	mux.HandleFunc("POST /api/checkout", h.Checkout)

	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{number}", h.GetOrder)
	mux.HandleFunc("PATCH /api/orders/{number}/status", h.UpdateOrderStatus)

	mux.HandleFunc("POST /api/payments/callback", h.PaymentCallback)

	mux.HandleFunc("POST /api/coupons/validate", h.ValidateCoupon)
	mux.HandleFunc("GET /api/variants/{variantID}/availability", h.VariantAvailability)
	mux.HandleFunc("POST /api/variants/{variantID}/adjust", h.AdjustStock)

	return mux
}
