package contract

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a contract.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var (
	// ErrNotFound is returned when a contract id does not resolve.
	ErrNotFound = errors.New("contract not found")
	// ErrAlreadyAccepted is returned when the vendor already holds an
	// acceptance for the contract.
	ErrAlreadyAccepted = errors.New("contract already accepted")
	// ErrNotOpen is returned when a contract is inactive or past its end date.
	ErrNotOpen = errors.New("contract is not open")
	// ErrInvalid is matched by every *ValidationError.
	ErrInvalid = errors.New("invalid contract fields")
	// ErrNoFields is returned by an update that names no mutable field.
	ErrNoFields = &ValidationError{Violations: map[string]string{"fields": "none_supplied"}}
)

// Contract is a wholesaler's standing offer to supply a product daily.
type Contract struct {
	ID            string
	WholesalerID  string
	ProductName   string
	DailyQuantity int
	PricePerUnit  decimal.Decimal
	DurationDays  int
	Description   string
	Status        Status
	EndDate       time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Read-side projections; zero unless the query populates them.
	WholesalerName  string
	BusinessName    string
	AcceptedAt      *time.Time
	AcceptedVendors int
	TotalOrders     int
}

// Open reports whether new acceptances and orders may target the contract.
func (c *Contract) Open(now time.Time) bool {
	return c.Status == StatusActive && c.EndDate.After(now)
}

// Limits of the stored columns. Values outside them are rejected as
// violations instead of failing in the database.
const (
	MaxDailyQuantity = math.MaxInt32
	MaxDurationDays  = 36500
)

// MaxPricePerUnit is the largest price a contract can carry.
var MaxPricePerUnit = decimal.RequireFromString("9999999999.99")

// Fields are the wholesaler-supplied values for a new contract.
type Fields struct {
	ProductName   string
	DailyQuantity int
	PricePerUnit  decimal.Decimal
	DurationDays  int
	Description   string
}

// Validate checks the fields and returns a *ValidationError listing every
// violation.
func (f Fields) Validate() error {
	v := make(map[string]string)
	if strings.TrimSpace(f.ProductName) == "" {
		v["productName"] = "required"
	}
	if code := quantityViolation(f.DailyQuantity); code != "" {
		v["dailyQuantity"] = code
	}
	if code := priceViolation(f.PricePerUnit); code != "" {
		v["pricePerUnit"] = code
	}
	switch {
	case f.DurationDays <= 0:
		v["duration"] = "must_be_positive"
	case f.DurationDays > MaxDurationDays:
		v["duration"] = "too_large"
	}
	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

// Update carries the mutable contract fields. Nil means unchanged.
type Update struct {
	ProductName   *string
	DailyQuantity *int
	PricePerUnit  *decimal.Decimal
	Description   *string
}

// Empty reports whether no field is set.
func (u Update) Empty() bool {
	return u.ProductName == nil && u.DailyQuantity == nil && u.PricePerUnit == nil && u.Description == nil
}

// Validate checks the fields that are set.
func (u Update) Validate() error {
	if u.Empty() {
		return ErrNoFields
	}
	v := make(map[string]string)
	if u.ProductName != nil && strings.TrimSpace(*u.ProductName) == "" {
		v["productName"] = "required"
	}
	if u.DailyQuantity != nil {
		if code := quantityViolation(*u.DailyQuantity); code != "" {
			v["dailyQuantity"] = code
		}
	}
	if u.PricePerUnit != nil {
		if code := priceViolation(*u.PricePerUnit); code != "" {
			v["pricePerUnit"] = code
		}
	}
	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

func quantityViolation(q int) string {
	switch {
	case q <= 0:
		return "must_be_positive"
	case q > MaxDailyQuantity:
		return "too_large"
	}
	return ""
}

// priceViolation checks the price as it will be stored, rounded to cents.
func priceViolation(p decimal.Decimal) string {
	p = p.Round(2)
	switch {
	case !p.IsPositive():
		return "must_be_positive"
	case p.GreaterThan(MaxPricePerUnit):
		return "too_large"
	}
	return ""
}

// ValidationError maps field names to violation codes.
type ValidationError struct {
	Violations map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Violations))
	for k := range e.Violations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Violations[k])
	}
	return "invalid contract fields: " + strings.Join(parts, ", ")
}

// Is makes every ValidationError match ErrInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// SearchQuery filters open contracts. Empty fields are ignored.
type SearchQuery struct {
	Text     string
	Location string
}

// Repository persists contracts and acceptances. Methods that mutate take
// part in the transaction carried by ctx, if any.
type Repository interface {
	Create(ctx context.Context, c *Contract) error
	GetByID(ctx context.Context, id string) (*Contract, error)
	// Accept inserts the (vendor, contract) acceptance. It reports false when
	// the pair already exists; the store's uniqueness constraint decides.
	Accept(ctx context.Context, contractID, vendorID string, at time.Time) (bool, error)
	IsAccepted(ctx context.Context, vendorID, contractID string) (bool, error)
	// Update and Deactivate return nil when no row matched id and owner.
	Update(ctx context.Context, id, wholesalerID string, u Update, at time.Time) (*Contract, error)
	Deactivate(ctx context.Context, id, wholesalerID string, at time.Time) (*Contract, error)

	AvailableFor(ctx context.Context, vendorID string, now time.Time) ([]Contract, error)
	Search(ctx context.Context, q SearchQuery, now time.Time) ([]Contract, error)
	ListByWholesaler(ctx context.Context, wholesalerID string) ([]Contract, error)
	ListAccepted(ctx context.Context, vendorID string) ([]Contract, error)
	ActiveByWholesaler(ctx context.Context, wholesalerID string, now time.Time) ([]Contract, error)
	EndingBetween(ctx context.Context, wholesalerID string, from, to time.Time) ([]Contract, error)
}
