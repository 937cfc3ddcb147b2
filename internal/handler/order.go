package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/vconn/internal/domain/auth"
	"github.com/xenking/vconn/internal/domain/order"
	"github.com/xenking/vconn/internal/idempotency"
)

const (
	// IdempotencyKeyHeader makes POST /vendor/orders safe to retry.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from a completed key.
	ReplayedHeader = "Idempotent-Replayed"

	maxIdempotencyKey = 255
)

// fingerprint identifies the order a placement request asks for.
func (req placeOrderRequest) fingerprint() string {
	sum := sha256.Sum256([]byte(req.ContractID + "\n" + strconv.Itoa(req.Quantity)))
	return hex.EncodeToString(sum[:])
}

func writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func writeOrders(w http.ResponseWriter, list []order.Order) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, list) })
}

func writeEligibility(w http.ResponseWriter, el order.Eligibility) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeEligibility(e, el) })
}

// PlaceOrder handles POST /vendor/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vendor := actor(r)

	req, err := decodePlaceOrder(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" || h.idem == nil {
		o, err := h.orders.PlaceOrder(ctx, vendor.ID, req.ContractID, req.Quantity)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeOrder(w, http.StatusCreated, o)
		return
	}
	if len(key) > maxIdempotencyKey {
		writeError(w, http.StatusBadRequest, "idempotency key too long")
		return
	}

	lg := zctx.From(ctx).With(zap.String("idempotency_key", key))
	fp := req.fingerprint()
	claim, err := h.idem.Claim(ctx, vendor.ID, key, fp)
	if err != nil {
		fail(w, r, err)
		return
	}
	switch claim.State {
	case idempotency.StateInFlight:
		writeError(w, http.StatusConflict, "a request with this idempotency key is in progress")
		return
	case idempotency.StateMismatch:
		writeError(w, http.StatusUnprocessableEntity, "idempotency key was used with a different request")
		return
	case idempotency.StateDone:
		o, err := h.orders.Get(ctx, claim.Result)
		if err != nil {
			fail(w, r, err)
			return
		}
		w.Header().Set(ReplayedHeader, "true")
		writeOrder(w, http.StatusCreated, o)
		return
	}

	o, err := h.orders.PlaceOrder(ctx, vendor.ID, req.ContractID, req.Quantity)
	if err != nil {
		if rerr := h.idem.Release(ctx, vendor.ID, key); rerr != nil {
			lg.Warn("Release idempotency key", zap.Error(rerr))
		}
		fail(w, r, err)
		return
	}
	if err := h.idem.Complete(ctx, vendor.ID, key, fp, o.ID); err != nil {
		lg.Warn("Complete idempotency key", zap.Error(err))
	}
	writeOrder(w, http.StatusCreated, o)
}

// CanPlaceOrder handles GET /vendor/contracts/{id}/eligibility.
func (h *Handler) CanPlaceOrder(w http.ResponseWriter, r *http.Request) {
	el, err := h.orders.CanPlaceOrder(r.Context(), actor(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeEligibility(w, el)
}

// CanCancel handles GET /vendor/orders/{id}/cancellable.
func (h *Handler) CanCancel(w http.ResponseWriter, r *http.Request) {
	el, err := h.orders.CanCancel(r.Context(), actor(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeEligibility(w, el)
}

// CancelOrder handles POST /vendor/orders/{id}/cancel.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.orders.Cancel(ctx, id, actor(r).ID); err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// VendorOrders handles GET /vendor/orders.
func (h *Handler) VendorOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListByVendor(r.Context(), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrders(w, list)
}

// ActiveOrders handles GET /vendor/orders/active.
func (h *Handler) ActiveOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ActiveByVendor(r.Context(), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrders(w, list)
}

// MarkDelivered handles POST /wholesaler/orders/{id}/deliver.
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.MarkDelivered(r.Context(), chi.URLParam(r, "id"), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if o == nil {
		fail(w, r, order.ErrNotFound)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

// GetOrder handles GET /orders/{id}. Only the ordering vendor and the
// contract's wholesaler can see an order; anyone else gets 404.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if !visible(actor(r), o) {
		fail(w, r, order.ErrNotFound)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

func visible(a auth.Actor, o *order.Order) bool {
	switch a.Role {
	case auth.RoleVendor:
		return o.VendorID == a.ID
	case auth.RoleWholesaler:
		return o.WholesalerID == a.ID
	}
	return false
}
