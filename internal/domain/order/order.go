package order

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending Status = "pending"
	// StatusConfirmed is accepted by the state machine but no operation here
	// produces it.
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusDelivered Status = "delivered"
)

// MaxQuantity is the largest quantity a single order can carry.
const MaxQuantity = math.MaxInt32

// MaxTotal is the largest order total that can be stored.
var MaxTotal = decimal.RequireFromString("999999999999.99")

var transitions = map[Status][]Status{
	StatusPending:   {StatusCancelled, StatusDelivered},
	StatusConfirmed: {StatusCancelled, StatusDelivered},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusDelivered:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusDelivered
}

// Open reports whether the order still awaits delivery.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Order is a vendor's order against a contract. TotalAmount is fixed when the
// order is placed and does not follow later price changes.
type Order struct {
	ID           string
	VendorID     string
	ContractID   string
	Quantity     int
	TotalAmount  decimal.Decimal
	Status       Status
	DeliveryDate time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeliveredAt  *time.Time

	// Read-side projections.
	WholesalerID   string
	ProductName    string
	PricePerUnit   decimal.Decimal
	VendorName     string
	VendorBusiness string
	VendorAddress  string
	VendorPhone    string
	WholesalerName string
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DeliveryDateFor returns the delivery date of an order placed at t.
func DeliveryDateFor(t time.Time) time.Time {
	return DateOf(t).AddDate(0, 0, 1)
}

// Repository defines persistence operations for orders. Methods called inside
// a transaction use the transaction carried by ctx.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// GetByID returns the order with its projections, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetForUpdate returns the order and locks its row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	SetStatus(ctx context.Context, id string, status Status, at time.Time) error
	// MarkDelivered moves an open order on a contract owned by wholesalerID to
	// delivered in one statement. It returns nil when no row qualified.
	MarkDelivered(ctx context.Context, id, wholesalerID string, at time.Time) (*Order, error)

	ListByVendor(ctx context.Context, vendorID string) ([]Order, error)
	ActiveByVendor(ctx context.Context, vendorID string) ([]Order, error)
	CountByVendor(ctx context.Context, vendorID string) (int, error)
}
