package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/almacart/commerce/internal/domain/lifecycle"
	"github.com/almacart/commerce/internal/domain/order"
)

// ListOrders returns the caller's orders, newest first. Guests look up orders
// by number instead; listing requires an authenticated user.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !ident.Authenticated {
		writeError(w, http.StatusForbidden, "forbidden", "order listing requires an authenticated user")
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), ident.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range orders {
						encodeOrder(e, &orders[i], nil, nil)
					}
				})
			})
		})
	})
}

// GetOrder returns one order by number with its line snapshots. The caller
// must own the order: by user id, or by session token for guest orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !ownsOrder(ident.UserID, ident.SessionToken, o) {
		respondError(w, r, order.ErrForbidden)
		return
	}

	items, err := h.orders.ItemsByOrder(r.Context(), o.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	payment, err := h.orders.PaymentByOrder(r.Context(), o.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, items, payment) })
}

func ownsOrder(userID uuid.UUID, sessionToken string, o *order.Order) bool {
	if o.UserID != uuid.Nil {
		return o.UserID == userID
	}
	return o.SessionToken != "" && o.SessionToken == sessionToken
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus moves an order through its fulfillment lifecycle. The
// endpoint sits behind the back-office gateway; ownership is not checked.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	updated, err := h.lifecycle.UpdateStatus(r.Context(), o.ID, order.Status(req.Status))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, updated, nil, nil) })
}

type paymentCallbackRequest struct {
	OrderID       uuid.UUID `json:"order_id"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id"`
}

// PaymentCallback applies an asynchronous gateway status report. The raw body
// is stored on the payment record as received.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "unreadable request body")
		return
	}

	var req paymentCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	updated, err := h.lifecycle.HandlePaymentCallback(r.Context(), lifecycle.Callback{
		OrderID:       req.OrderID,
		Status:        order.PaymentState(req.Status),
		TransactionID: req.TransactionID,
		Raw:           body,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, updated, nil, nil) })
}
