package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/vconn/internal/domain/contract"
	"github.com/xenking/vconn/internal/domain/quota"
)

// Contracts is the slice of the contract store the engine reads.
type Contracts interface {
	GetByID(ctx context.Context, id string) (*contract.Contract, error)
	IsAccepted(ctx context.Context, vendorID, contractID string) (bool, error)
}

// Quotas reads and consumes per-vendor allowances.
type Quotas interface {
	Remaining(ctx context.Context, actorID string, kind quota.Kind) (int, error)
	Consume(ctx context.Context, actorID string, kind quota.Kind) (bool, error)
}

// Transactor runs fn inside one store transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Eligibility is the outcome of a place or cancel preview.
type Eligibility struct {
	Allowed bool
	Reason  Reason
	// Remaining is the allowance left for the relevant quota kind.
	Remaining int
}

// Service runs the order lifecycle: placement, cancellation and delivery.
type Service struct {
	tx        Transactor
	contracts Contracts
	quotas    Quotas
	orders    Repository
	metrics   *Metrics
	now       func() time.Time
}

// NewService creates an order Service. metrics may be nil.
func NewService(
	tx Transactor,
	contracts Contracts,
	quotas Quotas,
	orders Repository,
	metrics *Metrics,
) *Service {
	return &Service{
		tx:        tx,
		contracts: contracts,
		quotas:    quotas,
		orders:    orders,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *Service) contract(ctx context.Context, id string) (*contract.Contract, error) {
	c, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrContractNotFound) {
			return nil, ErrContractNotFound
		}
		return nil, errors.Wrap(err, "get contract")
	}
	return c, nil
}

// placement evaluates the placement rule for an existing contract. An
// acceptance always allows ordering and bypasses the free-attempt quota.
func (s *Service) placement(ctx context.Context, vendorID string, c *contract.Contract) (Eligibility, error) {
	if !c.Open(s.now()) {
		return Eligibility{Reason: ReasonContractClosed}, nil
	}

	accepted, err := s.contracts.IsAccepted(ctx, vendorID, c.ID)
	if err != nil {
		return Eligibility{}, errors.Wrap(err, "check acceptance")
	}
	left, err := s.quotas.Remaining(ctx, vendorID, quota.FreeAttempts)
	if err != nil {
		return Eligibility{}, err
	}

	switch {
	case accepted:
		return Eligibility{Allowed: true, Reason: ReasonAccepted, Remaining: left}, nil
	case left > 0:
		return Eligibility{Allowed: true, Reason: ReasonFreeAttempt, Remaining: left}, nil
	default:
		return Eligibility{Reason: ReasonNoFreeAttempts}, nil
	}
}

// CanPlaceOrder previews whether vendorID may order against contractID.
// It changes nothing.
func (s *Service) CanPlaceOrder(ctx context.Context, vendorID, contractID string) (Eligibility, error) {
	c, err := s.contract(ctx, contractID)
	if err != nil {
		return Eligibility{}, err
	}
	return s.placement(ctx, vendorID, c)
}

// PlaceOrder creates a pending order. The eligibility reads, the free-attempt
// consumption and the insert commit together or not at all.
func (s *Service) PlaceOrder(ctx context.Context, vendorID, contractID string, quantity int) (*Order, error) {
	if quantity <= 0 || quantity > MaxQuantity {
		return nil, ErrInvalidQuantity
	}

	var (
		placed *Order
		path   Reason
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.contract(ctx, contractID)
		if err != nil {
			return err
		}

		now := s.now()
		if !c.Open(now) {
			return ineligible(ReasonContractClosed)
		}
		total := c.PricePerUnit.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
		if total.GreaterThan(MaxTotal) {
			return errors.Wrapf(ErrInvalidQuantity, "total %s exceeds %s", total, MaxTotal)
		}

		accepted, err := s.contracts.IsAccepted(ctx, vendorID, contractID)
		if err != nil {
			return errors.Wrap(err, "check acceptance")
		}
		path = ReasonAccepted
		if !accepted {
			ok, err := s.quotas.Consume(ctx, vendorID, quota.FreeAttempts)
			if err != nil {
				return err
			}
			if !ok {
				return ineligible(ReasonNoFreeAttempts)
			}
			path = ReasonFreeAttempt
		}

		o := &Order{
			ID:           uuid.New().String(),
			VendorID:     vendorID,
			ContractID:   contractID,
			Quantity:     quantity,
			TotalAmount:  total,
			Status:       StatusPending,
			DeliveryDate: DeliveryDateFor(now),
			CreatedAt:    now,
			UpdatedAt:    now,
			WholesalerID: c.WholesalerID,
			ProductName:  c.ProductName,
			PricePerUnit: c.PricePerUnit,
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		placed = o
		return nil
	})
	if err != nil {
		s.metrics.recordRejected(ctx, "place", err)
		return nil, err
	}

	s.metrics.recordPlaced(ctx, path)
	return placed, nil
}

func cancellable(o *Order, vendorID string) (Reason, bool) {
	if o.VendorID != vendorID {
		return ReasonNotOwner, false
	}
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return ReasonTerminal, false
	}
	return "", true
}

// CanCancel previews whether vendorID may cancel orderID.
func (s *Service) CanCancel(ctx context.Context, vendorID, orderID string) (Eligibility, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return Eligibility{}, err
	}
	if reason, ok := cancellable(o, vendorID); !ok {
		return Eligibility{Reason: reason}, nil
	}

	left, err := s.quotas.Remaining(ctx, vendorID, quota.Cancellations)
	if err != nil {
		return Eligibility{}, err
	}
	if left == 0 {
		return Eligibility{Reason: ReasonNoCancellations}, nil
	}
	return Eligibility{Allowed: true, Remaining: left}, nil
}

// Cancel cancels an open order owned by vendorID and spends one cancellation.
// The order row stays locked from the ownership check to the status write.
func (s *Service) Cancel(ctx context.Context, orderID, vendorID string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if reason, ok := cancellable(o, vendorID); !ok {
			return ineligible(reason)
		}

		ok, err := s.quotas.Consume(ctx, vendorID, quota.Cancellations)
		if err != nil {
			return err
		}
		if !ok {
			return ineligible(ReasonNoCancellations)
		}

		if err := s.orders.SetStatus(ctx, orderID, StatusCancelled, s.now()); err != nil {
			return errors.Wrap(err, "set status")
		}
		return nil
	})
	if err != nil {
		s.metrics.recordRejected(ctx, "cancel", err)
		return err
	}

	s.metrics.recordCancelled(ctx)
	return nil
}

// MarkDelivered marks an open order on one of wholesalerID's contracts as
// delivered. It returns (nil, nil) when the order is missing, belongs to
// another wholesaler's contract or is already terminal.
func (s *Service) MarkDelivered(ctx context.Context, orderID, wholesalerID string) (*Order, error) {
	o, err := s.orders.MarkDelivered(ctx, orderID, wholesalerID, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "mark delivered")
	}
	if o != nil {
		s.metrics.recordDelivered(ctx)
	}
	return o, nil
}

// Get returns an order with contract and party details.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// ListByVendor returns every order of the vendor, newest first.
func (s *Service) ListByVendor(ctx context.Context, vendorID string) ([]Order, error) {
	return s.orders.ListByVendor(ctx, vendorID)
}

// ActiveByVendor returns the vendor's orders still awaiting delivery.
func (s *Service) ActiveByVendor(ctx context.Context, vendorID string) ([]Order, error) {
	return s.orders.ActiveByVendor(ctx, vendorID)
}

// CountByVendor returns how many orders the vendor has placed.
func (s *Service) CountByVendor(ctx context.Context, vendorID string) (int, error) {
	return s.orders.CountByVendor(ctx, vendorID)
}
