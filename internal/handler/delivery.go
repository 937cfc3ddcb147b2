package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/vconn/internal/domain/order"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// dateParam parses ?date=YYYY-MM-DD, defaulting to today when allowed.
func (h *Handler) dateParam(r *http.Request, required bool) (time.Time, bool) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return order.DateOf(h.now()), !required
	}
	d, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// TodayDeliveries handles GET /wholesaler/deliveries/today.
func (h *Handler) TodayDeliveries(w http.ResponseWriter, r *http.Request) {
	list, err := h.deliveries.Today(r.Context(), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrders(w, list)
}

// DeliveriesByDate handles GET /wholesaler/deliveries?date=YYYY-MM-DD.
func (h *Handler) DeliveriesByDate(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(r, true)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	list, err := h.deliveries.ByDate(r.Context(), actor(r).ID, date)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrders(w, list)
}

// DeliveryManifest handles GET /wholesaler/deliveries/manifest[?date=].
func (h *Handler) DeliveryManifest(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(r, false)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	data, err := h.deliveries.ExportManifest(r.Context(), actor(r).ID, date)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="manifest-`+date.Format(dateLayout)+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Earnings handles GET /wholesaler/earnings.
func (h *Handler) Earnings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := actor(r).ID

	today, err := h.deliveries.TodayEarnings(ctx, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	total, err := h.deliveries.TotalEarnings(ctx, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.FieldStart("today")
			encodeMoney(e, today)
			e.FieldStart("total")
			encodeMoney(e, total)
		})
	})
}

// WholesalerStats handles GET /wholesaler/stats.
func (h *Handler) WholesalerStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.deliveries.WholesalerStats(r.Context(), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeWholesalerStats(e, s) })
}

// VendorStats handles GET /vendor/stats.
func (h *Handler) VendorStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.deliveries.VendorStats(r.Context(), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeVendorStats(e, s) })
}
