// Package delivery provides the read-side views a wholesaler and a vendor work
// from: scheduled deliveries, earnings and dashboard statistics. Nothing here
// mutates state.
package delivery

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/vconn/internal/domain/contract"
	"github.com/xenking/vconn/internal/domain/order"
	"github.com/xenking/vconn/internal/domain/quota"
)

var (
	// OpenStatuses are orders still awaiting delivery.
	OpenStatuses = []order.Status{order.StatusPending, order.StatusConfirmed}
	// ManifestStatuses are orders listed on a delivery manifest.
	ManifestStatuses = []order.Status{order.StatusPending, order.StatusConfirmed, order.StatusDelivered}
)

// Repository runs the aggregate queries over a wholesaler's contracts.
type Repository interface {
	// ByDate returns orders on the wholesaler's contracts due on date. An
	// empty statuses slice matches every status.
	ByDate(ctx context.Context, wholesalerID string, date time.Time, statuses []order.Status) ([]order.Order, error)
	// Earnings sums delivered order totals, restricted to delivery date when
	// date is non-nil. It returns zero when nothing matches.
	Earnings(ctx context.Context, wholesalerID string, date *time.Time) (decimal.Decimal, error)
}

// Contracts lists contracts for the dashboards.
type Contracts interface {
	ActiveByWholesaler(ctx context.Context, wholesalerID string) ([]contract.Contract, error)
	Accepted(ctx context.Context, vendorID string) ([]contract.Contract, error)
}

// Orders reads vendor order counts.
type Orders interface {
	ActiveByVendor(ctx context.Context, vendorID string) ([]order.Order, error)
	CountByVendor(ctx context.Context, vendorID string) (int, error)
}

// Quotas reads remaining allowances.
type Quotas interface {
	Remaining(ctx context.Context, actorID string, kind quota.Kind) (int, error)
}

// Manifest is the delivery sheet for one wholesaler and date.
type Manifest struct {
	WholesalerID string
	Date         time.Time
	Orders       []order.Order
}

// ManifestWriter renders a Manifest.
type ManifestWriter interface {
	WriteManifest(w io.Writer, m Manifest) error
}

// WholesalerStats is the wholesaler dashboard summary.
type WholesalerStats struct {
	ActiveContracts int
	TodayDeliveries int
	TodayEarnings   decimal.Decimal
	TotalEarnings   decimal.Decimal
}

// VendorStats is the vendor dashboard summary.
type VendorStats struct {
	AcceptedContracts int
	ActiveOrders      int
	TotalOrders       int
	FreeAttemptsLeft  int
	CancellationsLeft int
}

// Service aggregates deliveries and earnings.
type Service struct {
	repo      Repository
	contracts Contracts
	orders    Orders
	quotas    Quotas
	manifest  ManifestWriter
	now       func() time.Time
}

// NewService creates a delivery Service.
func NewService(repo Repository, contracts Contracts, orders Orders, quotas Quotas, manifest ManifestWriter) *Service {
	return &Service{
		repo:      repo,
		contracts: contracts,
		orders:    orders,
		quotas:    quotas,
		manifest:  manifest,
		now:       time.Now,
	}
}

func (s *Service) today() time.Time {
	return order.DateOf(s.now())
}

// Today returns open orders due today on the wholesaler's contracts.
func (s *Service) Today(ctx context.Context, wholesalerID string) ([]order.Order, error) {
	return s.repo.ByDate(ctx, wholesalerID, s.today(), OpenStatuses)
}

// ByDate returns every order due on date, whatever its status.
func (s *Service) ByDate(ctx context.Context, wholesalerID string, date time.Time) ([]order.Order, error) {
	return s.repo.ByDate(ctx, wholesalerID, order.DateOf(date), nil)
}

// TodayEarnings sums delivered orders due today.
func (s *Service) TodayEarnings(ctx context.Context, wholesalerID string) (decimal.Decimal, error) {
	today := s.today()
	return s.repo.Earnings(ctx, wholesalerID, &today)
}

// TotalEarnings sums every delivered order.
func (s *Service) TotalEarnings(ctx context.Context, wholesalerID string) (decimal.Decimal, error) {
	return s.repo.Earnings(ctx, wholesalerID, nil)
}

// WholesalerStats collects the wholesaler dashboard concurrently.
func (s *Service) WholesalerStats(ctx context.Context, wholesalerID string) (*WholesalerStats, error) {
	var st WholesalerStats
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		active, err := s.contracts.ActiveByWholesaler(ctx, wholesalerID)
		if err != nil {
			return errors.Wrap(err, "active contracts")
		}
		st.ActiveContracts = len(active)
		return nil
	})
	g.Go(func() error {
		today, err := s.Today(ctx, wholesalerID)
		if err != nil {
			return errors.Wrap(err, "today deliveries")
		}
		st.TodayDeliveries = len(today)
		return nil
	})
	g.Go(func() error {
		v, err := s.TodayEarnings(ctx, wholesalerID)
		if err != nil {
			return errors.Wrap(err, "today earnings")
		}
		st.TodayEarnings = v
		return nil
	})
	g.Go(func() error {
		v, err := s.TotalEarnings(ctx, wholesalerID)
		if err != nil {
			return errors.Wrap(err, "total earnings")
		}
		st.TotalEarnings = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}

// VendorStats collects the vendor dashboard concurrently.
func (s *Service) VendorStats(ctx context.Context, vendorID string) (*VendorStats, error) {
	var st VendorStats
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		accepted, err := s.contracts.Accepted(ctx, vendorID)
		if err != nil {
			return errors.Wrap(err, "accepted contracts")
		}
		st.AcceptedContracts = len(accepted)
		return nil
	})
	g.Go(func() error {
		active, err := s.orders.ActiveByVendor(ctx, vendorID)
		if err != nil {
			return errors.Wrap(err, "active orders")
		}
		st.ActiveOrders = len(active)
		return nil
	})
	g.Go(func() error {
		n, err := s.orders.CountByVendor(ctx, vendorID)
		if err != nil {
			return errors.Wrap(err, "count orders")
		}
		st.TotalOrders = n
		return nil
	})
	g.Go(func() error {
		n, err := s.quotas.Remaining(ctx, vendorID, quota.FreeAttempts)
		if err != nil {
			return err
		}
		st.FreeAttemptsLeft = n
		return nil
	})
	g.Go(func() error {
		n, err := s.quotas.Remaining(ctx, vendorID, quota.Cancellations)
		if err != nil {
			return err
		}
		st.CancellationsLeft = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}

// ExportManifest renders the delivery manifest for date.
func (s *Service) ExportManifest(ctx context.Context, wholesalerID string, date time.Time) ([]byte, error) {
	date = order.DateOf(date)
	orders, err := s.repo.ByDate(ctx, wholesalerID, date, ManifestStatuses)
	if err != nil {
		return nil, errors.Wrap(err, "list deliveries")
	}

	var buf bytes.Buffer
	if err := s.manifest.WriteManifest(&buf, Manifest{
		WholesalerID: wholesalerID,
		Date:         date,
		Orders:       orders,
	}); err != nil {
		return nil, errors.Wrap(err, "write manifest")
	}
	return buf.Bytes(), nil
}
