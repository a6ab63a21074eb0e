package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/almacart/commerce/internal/domain/address"
	"github.com/almacart/commerce/internal/domain/cart"
	"github.com/almacart/commerce/internal/domain/catalog"
	"github.com/almacart/commerce/internal/domain/checkout"
	"github.com/almacart/commerce/internal/domain/coupon"
	"github.com/almacart/commerce/internal/domain/identity"
	"github.com/almacart/commerce/internal/domain/inventory"
	"github.com/almacart/commerce/internal/domain/lifecycle"
	"github.com/almacart/commerce/internal/domain/order"
	"github.com/almacart/commerce/internal/storage"
)

// writeJSON encodes one JSON document built by fn and writes it with status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the standard error envelope {"code": ..., "message": ...}.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// respondError maps a domain error to an HTTP response. Unrecognized errors
// are logged and hidden behind a 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rejected   *coupon.RejectedError
		stock      *inventory.InsufficientStockError
		transition *order.InvalidTransitionError
		missing    *address.MissingFieldsError
		gone       *cart.VariantUnavailableError
	)

	switch {
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, address.ErrNotFound),
		errors.Is(err, catalog.ErrVariantNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, order.ErrForbidden), errors.Is(err, address.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	case errors.Is(err, cart.ErrEmpty),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrAddressRequired),
		errors.Is(err, checkout.ErrAddressConflict),
		errors.Is(err, checkout.ErrNegativeShippingFee),
		errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())

	case errors.As(err, &rejected):
		writeError(w, http.StatusUnprocessableEntity, string(rejected.Reason), rejected.Message)

	case errors.As(err, &gone):
		writeError(w, http.StatusUnprocessableEntity, "variant_unavailable", gone.Error())

	case errors.As(err, &stock):
		writeError(w, http.StatusConflict, "insufficient_stock", stock.Error())

	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "invalid_transition", transition.Error())

	case errors.Is(err, lifecycle.ErrUnknownPaymentState):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())

	case errors.Is(err, storage.ErrContention):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "contention", "please retry")

	default:
		zctx.From(r.Context()).Error("Unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// requireIdentity resolves the caller or writes a 401 and reports false.
func requireIdentity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	ident := identityFrom(r)
	if !ident.Valid() {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required: provide X-User-ID or X-Session-Token")
		return ident, false
	}
	return ident, true
}
