package contract

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// EndingSoonWindow is the default look-ahead for EndingSoon.
const EndingSoonWindow = 7 * 24 * time.Hour

// Transactor runs fn inside a single store transaction. The transaction
// travels in the context passed to fn.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Registry owns contract records and vendor acceptances.
type Registry struct {
	repo Repository
	tx   Transactor
	now  func() time.Time
}

// NewRegistry creates a Registry over repo.
func NewRegistry(tx Transactor, repo Repository) *Registry {
	return &Registry{repo: repo, tx: tx, now: time.Now}
}

// Create validates fields and stores a new active contract whose end date is
// fixed at now + duration days.
func (r *Registry) Create(ctx context.Context, wholesalerID string, f Fields) (*Contract, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	now := r.now()
	c := &Contract{
		ID:            uuid.New().String(),
		WholesalerID:  wholesalerID,
		ProductName:   f.ProductName,
		DailyQuantity: f.DailyQuantity,
		PricePerUnit:  f.PricePerUnit.Round(2),
		DurationDays:  f.DurationDays,
		Description:   f.Description,
		Status:        StatusActive,
		EndDate:       now.AddDate(0, 0, f.DurationDays),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create contract")
	}
	return c, nil
}

// Get returns a contract with its wholesaler's names.
func (r *Registry) Get(ctx context.Context, id string) (*Contract, error) {
	return r.repo.GetByID(ctx, id)
}

// Accept records vendorID's acceptance of contractID. A second acceptance of
// the same pair fails with ErrAlreadyAccepted, including when both race.
func (r *Registry) Accept(ctx context.Context, contractID, vendorID string) (*Contract, error) {
	var accepted *Contract
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := r.repo.GetByID(ctx, contractID)
		if err != nil {
			return err
		}

		now := r.now()
		if !c.Open(now) {
			return ErrNotOpen
		}

		inserted, err := r.repo.Accept(ctx, contractID, vendorID, now)
		if err != nil {
			return errors.Wrap(err, "insert acceptance")
		}
		if !inserted {
			return ErrAlreadyAccepted
		}

		c.AcceptedAt = &now
		accepted = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// AvailableFor lists open contracts the vendor has not accepted, newest first.
func (r *Registry) AvailableFor(ctx context.Context, vendorID string) ([]Contract, error) {
	return r.repo.AvailableFor(ctx, vendorID, r.now())
}

// Accepted lists the contracts the vendor has accepted, latest acceptance first.
func (r *Registry) Accepted(ctx context.Context, vendorID string) ([]Contract, error) {
	return r.repo.ListAccepted(ctx, vendorID)
}

// Update changes mutable fields of a contract owned by wholesalerID. It
// returns (nil, nil) when the contract does not exist or belongs to someone
// else; callers must check.
func (r *Registry) Update(ctx context.Context, contractID, wholesalerID string, u Update) (*Contract, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if u.PricePerUnit != nil {
		p := u.PricePerUnit.Round(2)
		u.PricePerUnit = &p
	}
	c, err := r.repo.Update(ctx, contractID, wholesalerID, u, r.now())
	if err != nil {
		return nil, errors.Wrap(err, "update contract")
	}
	return c, nil
}

// Deactivate closes a contract to new acceptances and orders. Existing
// acceptances and orders are untouched. Ownership mismatch yields (nil, nil).
func (r *Registry) Deactivate(ctx context.Context, contractID, wholesalerID string) (*Contract, error) {
	c, err := r.repo.Deactivate(ctx, contractID, wholesalerID, r.now())
	if err != nil {
		return nil, errors.Wrap(err, "deactivate contract")
	}
	return c, nil
}

// Search returns open contracts matching q, newest first.
func (r *Registry) Search(ctx context.Context, q SearchQuery) ([]Contract, error) {
	return r.repo.Search(ctx, q, r.now())
}

// ListByWholesaler returns every contract of the wholesaler with acceptance
// and order counts.
func (r *Registry) ListByWholesaler(ctx context.Context, wholesalerID string) ([]Contract, error) {
	return r.repo.ListByWholesaler(ctx, wholesalerID)
}

// ActiveByWholesaler returns the wholesaler's open contracts.
func (r *Registry) ActiveByWholesaler(ctx context.Context, wholesalerID string) ([]Contract, error) {
	return r.repo.ActiveByWholesaler(ctx, wholesalerID, r.now())
}

// EndingSoon returns open contracts ending within window, soonest first.
func (r *Registry) EndingSoon(ctx context.Context, wholesalerID string, window time.Duration) ([]Contract, error) {
	if window <= 0 {
		window = EndingSoonWindow
	}
	now := r.now()
	return r.repo.EndingBetween(ctx, wholesalerID, now, now.Add(window))
}
