// Package handler exposes the contract, order and delivery services as a
// JSON API under /api/v1.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/vconn/internal/domain/auth"
	"github.com/xenking/vconn/internal/domain/contract"
	"github.com/xenking/vconn/internal/domain/delivery"
	"github.com/xenking/vconn/internal/domain/order"
	"github.com/xenking/vconn/internal/idempotency"
	"github.com/xenking/vconn/pkg/httpmiddleware"
)

// Contracts is the contract registry as used by the API.
type Contracts interface {
	Create(ctx context.Context, wholesalerID string, f contract.Fields) (*contract.Contract, error)
	Get(ctx context.Context, id string) (*contract.Contract, error)
	Accept(ctx context.Context, contractID, vendorID string) (*contract.Contract, error)
	AvailableFor(ctx context.Context, vendorID string) ([]contract.Contract, error)
	Accepted(ctx context.Context, vendorID string) ([]contract.Contract, error)
	Update(ctx context.Context, contractID, wholesalerID string, u contract.Update) (*contract.Contract, error)
	Deactivate(ctx context.Context, contractID, wholesalerID string) (*contract.Contract, error)
	Search(ctx context.Context, q contract.SearchQuery) ([]contract.Contract, error)
	ListByWholesaler(ctx context.Context, wholesalerID string) ([]contract.Contract, error)
	EndingSoon(ctx context.Context, wholesalerID string, window time.Duration) ([]contract.Contract, error)
}

// Orders is the order lifecycle service as used by the API.
type Orders interface {
	CanPlaceOrder(ctx context.Context, vendorID, contractID string) (order.Eligibility, error)
	PlaceOrder(ctx context.Context, vendorID, contractID string, quantity int) (*order.Order, error)
	CanCancel(ctx context.Context, vendorID, orderID string) (order.Eligibility, error)
	Cancel(ctx context.Context, orderID, vendorID string) error
	MarkDelivered(ctx context.Context, orderID, wholesalerID string) (*order.Order, error)
	Get(ctx context.Context, orderID string) (*order.Order, error)
	ListByVendor(ctx context.Context, vendorID string) ([]order.Order, error)
	ActiveByVendor(ctx context.Context, vendorID string) ([]order.Order, error)
}

// Deliveries is the delivery aggregator as used by the API.
type Deliveries interface {
	Today(ctx context.Context, wholesalerID string) ([]order.Order, error)
	ByDate(ctx context.Context, wholesalerID string, date time.Time) ([]order.Order, error)
	TodayEarnings(ctx context.Context, wholesalerID string) (decimal.Decimal, error)
	TotalEarnings(ctx context.Context, wholesalerID string) (decimal.Decimal, error)
	WholesalerStats(ctx context.Context, wholesalerID string) (*delivery.WholesalerStats, error)
	VendorStats(ctx context.Context, vendorID string) (*delivery.VendorStats, error)
	ExportManifest(ctx context.Context, wholesalerID string, date time.Time) ([]byte, error)
}

// Idempotency guards order placement retries.
type Idempotency interface {
	Claim(ctx context.Context, scope, key, fingerprint string) (idempotency.Claim, error)
	Complete(ctx context.Context, scope, key, fingerprint, result string) error
	Release(ctx context.Context, scope, key string) error
}

// Handler serves the marketplace API.
type Handler struct {
	contracts  Contracts
	orders     Orders
	deliveries Deliveries
	// idem is nil when no redis is configured.
	idem Idempotency
	now  func() time.Time
}

// New constructs a Handler. idem may be nil.
func New(contracts Contracts, orders Orders, deliveries Deliveries, idem Idempotency) *Handler {
	return &Handler{
		contracts:  contracts,
		orders:     orders,
		deliveries: deliveries,
		idem:       idem,
		now:        time.Now,
	}
}

// Router mounts the API. Every /api/v1 route requires an API key; the
// vendor and wholesaler groups additionally check the actor's role.
func (h *Handler) Router(authn *Authenticator) chi.Router {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Labeler(),
		httpmiddleware.LogRequests(),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Get("/contracts/search", h.SearchContracts)
		r.Get("/contracts/{id}", h.GetContract)
		r.Get("/orders/{id}", h.GetOrder)

		r.Route("/vendor", func(r chi.Router) {
			r.Use(RequireRole(auth.RoleVendor))

			r.Get("/contracts/available", h.AvailableContracts)
			r.Get("/contracts/accepted", h.AcceptedContracts)
			r.Post("/contracts/{id}/accept", h.AcceptContract)
			r.Get("/contracts/{id}/eligibility", h.CanPlaceOrder)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders", h.VendorOrders)
			r.Get("/orders/active", h.ActiveOrders)
			r.Get("/orders/{id}/cancellable", h.CanCancel)
			r.Post("/orders/{id}/cancel", h.CancelOrder)

			r.Get("/stats", h.VendorStats)
		})

		r.Route("/wholesaler", func(r chi.Router) {
			r.Use(RequireRole(auth.RoleWholesaler))

			r.Post("/contracts", h.CreateContract)
			r.Get("/contracts", h.WholesalerContracts)
			r.Get("/contracts/ending-soon", h.EndingSoon)
			r.Patch("/contracts/{id}", h.UpdateContract)
			r.Delete("/contracts/{id}", h.DeactivateContract)

			r.Post("/orders/{id}/deliver", h.MarkDelivered)

			r.Get("/deliveries/today", h.TodayDeliveries)
			r.Get("/deliveries", h.DeliveriesByDate)
			r.Get("/deliveries/manifest", h.DeliveryManifest)
			r.Get("/earnings", h.Earnings)
			r.Get("/stats", h.WholesalerStats)
		})
	})
	return r
}
