package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/vconn/internal/domain/contract"
)

func writeContract(w http.ResponseWriter, status int, c *contract.Contract) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeContract(e, c) })
}

func writeContracts(w http.ResponseWriter, cs []contract.Contract) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeContracts(e, cs) })
}

// CreateContract handles POST /wholesaler/contracts.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	f, err := decodeFields(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.contracts.Create(r.Context(), actor(r).ID, f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeContract(w, http.StatusCreated, c)
}

// UpdateContract handles PATCH /wholesaler/contracts/{id}.
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	u, err := decodeUpdate(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.contracts.Update(r.Context(), chi.URLParam(r, "id"), actor(r).ID, u)
	if err != nil {
		fail(w, r, err)
		return
	}
	if c == nil {
		fail(w, r, contract.ErrNotFound)
		return
	}
	writeContract(w, http.StatusOK, c)
}

// DeactivateContract handles DELETE /wholesaler/contracts/{id}.
func (h *Handler) DeactivateContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.Deactivate(r.Context(), chi.URLParam(r, "id"), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if c == nil {
		fail(w, r, contract.ErrNotFound)
		return
	}
	writeContract(w, http.StatusOK, c)
}

// WholesalerContracts handles GET /wholesaler/contracts.
func (h *Handler) WholesalerContracts(w http.ResponseWriter, r *http.Request) {
	cs, err := h.contracts.ListByWholesaler(r.Context(), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeContracts(w, cs)
}

// EndingSoon handles GET /wholesaler/contracts/ending-soon?days=N.
func (h *Handler) EndingSoon(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if v := r.URL.Query().Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 || days > 365 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		window = time.Duration(days) * 24 * time.Hour
	}
	cs, err := h.contracts.EndingSoon(r.Context(), actor(r).ID, window)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeContracts(w, cs)
}

// GetContract handles GET /contracts/{id}.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeContract(w, http.StatusOK, c)
}

// SearchContracts handles GET /contracts/search?q=&location=.
func (h *Handler) SearchContracts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cs, err := h.contracts.Search(r.Context(), contract.SearchQuery{
		Text:     strings.TrimSpace(q.Get("q")),
		Location: strings.TrimSpace(q.Get("location")),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeContracts(w, cs)
}

// AvailableContracts handles GET /vendor/contracts/available.
func (h *Handler) AvailableContracts(w http.ResponseWriter, r *http.Request) {
	cs, err := h.contracts.AvailableFor(r.Context(), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeContracts(w, cs)
}

// AcceptedContracts handles GET /vendor/contracts/accepted.
func (h *Handler) AcceptedContracts(w http.ResponseWriter, r *http.Request) {
	cs, err := h.contracts.Accepted(r.Context(), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeContracts(w, cs)
}

// AcceptContract handles POST /vendor/contracts/{id}/accept.
func (h *Handler) AcceptContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.contracts.Accept(r.Context(), chi.URLParam(r, "id"), actor(r).ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeContract(w, http.StatusOK, c)
}
