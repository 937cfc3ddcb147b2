package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/vconn/internal/domain/contract"
)

var (
	// ErrNotFound is returned when an order id does not resolve.
	ErrNotFound = errors.New("order not found")
	// ErrContractNotFound is returned when an order targets a missing contract.
	ErrContractNotFound = contract.ErrNotFound
	// ErrNotEligible is matched by every *IneligibleError.
	ErrNotEligible = errors.New("not eligible")
	// ErrQuotaExceeded is matched by an *IneligibleError caused by an
	// exhausted allowance.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrInvalidQuantity is returned for a non-positive order quantity or one
	// whose total does not fit an order.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Reason explains an eligibility decision.
type Reason string

const (
	ReasonAccepted        Reason = "accepted"
	ReasonFreeAttempt     Reason = "free_attempt"
	ReasonNoFreeAttempts  Reason = "no_free_attempts"
	ReasonContractClosed  Reason = "contract_closed"
	ReasonNotOwner        Reason = "not_owner"
	ReasonTerminal        Reason = "terminal_status"
	ReasonNoCancellations Reason = "no_cancellations"
)

// Exhausted reports whether the reason is a spent allowance.
func (r Reason) Exhausted() bool {
	return r == ReasonNoFreeAttempts || r == ReasonNoCancellations
}

// IneligibleError is the business rejection of a place or cancel request.
type IneligibleError struct {
	Reason Reason
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("not eligible: %s", e.Reason)
}

// Is matches ErrNotEligible always and ErrQuotaExceeded for exhausted
// allowances.
func (e *IneligibleError) Is(target error) bool {
	switch target {
	case ErrNotEligible:
		return true
	case ErrQuotaExceeded:
		return e.Reason.Exhausted()
	}
	return false
}

func ineligible(r Reason) error {
	return &IneligibleError{Reason: r}
}
